package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/tsdist/internal/config"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project configuration file written by init.
const ConfigFileName = ".tsdist.yml"

// InitService scaffolds a project layout that tsdist can build.
type InitService struct{}

// NewInitService creates a new initialization service
func NewInitService() *InitService {
	return &InitService{}
}

// InitOptions contains options for project initialization
type InitOptions struct {
	ProjectDir string
	// Example adds a small client page with a TypeScript entry point.
	Example bool
	// Force overwrites an existing configuration file.
	Force bool
}

// InitProject creates the source roots and a configuration file holding the
// default settings.
func (s *InitService) InitProject(opts InitOptions) error {
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if err := os.MkdirAll(opts.ProjectDir, 0o755); err != nil {
		return disterrors.WrapIO(err, "", "cannot create project directory", opts.ProjectDir)
	}

	cfg := config.Default()
	if err := s.createDirectoryStructure(opts.ProjectDir, cfg.Roots); err != nil {
		return err
	}
	if err := s.createConfigFile(opts.ProjectDir, cfg, opts.Force); err != nil {
		return err
	}
	if opts.Example {
		return s.createExample(opts.ProjectDir)
	}
	return nil
}

func (s *InitService) createDirectoryStructure(projectDir string, roots []config.RootConfig) error {
	for _, root := range roots {
		dirPath := filepath.Join(projectDir, root.Src)
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return disterrors.WrapIO(err, "", fmt.Sprintf("failed to create directory %s", root.Src), dirPath)
		}
	}
	return nil
}

func (s *InitService) createConfigFile(projectDir string, cfg *config.Config, force bool) error {
	path := filepath.Join(projectDir, ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return disterrors.NewConfigurationError(disterrors.CodeInvalidConfig,
			fmt.Sprintf("%s already exists; use --force to overwrite it", path))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return disterrors.WrapIO(err, "", "cannot inspect configuration file", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return disterrors.NewInternalError("", "failed to encode configuration", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return disterrors.WrapIO(err, "", "failed to write configuration", path)
	}
	return nil
}

func (s *InitService) createExample(projectDir string) error {
	files := map[string]string{
		filepath.Join("client", "index.html"): `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>tsdist</title>
</head>
<body>
  <h1 id="greeting"></h1>
  <script src="app.ts"></script>
</body>
</html>
`,
		filepath.Join("client", "app.ts"): `import { greet } from './greet';

const el = document.getElementById('greeting');
if (el) el.textContent = greet('world');
`,
		filepath.Join("client", "greet.ts"): "export const greet = (name: string): string => `Hello, ${name}!`;\n",
		filepath.Join("server", "main.ts"): "console.log('server started');\n",
	}

	for rel, content := range files {
		path := filepath.Join(projectDir, rel)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return disterrors.WrapIO(err, "", "failed to create example file", path)
		}
	}
	return nil
}
