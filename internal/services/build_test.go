package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/conneroisu/tsdist/internal/bundler"
	"github.com/conneroisu/tsdist/internal/config"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
	"github.com/conneroisu/tsdist/internal/metrics"
	"github.com/conneroisu/tsdist/internal/watcher"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	for i := range cfg.Roots {
		cfg.Roots[i].Src = filepath.Join(dir, cfg.Roots[i].Src)
		cfg.Roots[i].Dest = filepath.Join(dir, cfg.Roots[i].Dest)
	}
	return cfg
}

func TestBuildService_NoSourceRoots(t *testing.T) {
	var out bytes.Buffer
	svc := NewBuildService(testConfig(t.TempDir()), nil, &out)

	_, err := svc.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, disterrors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "client/, server/, or src/")
	assert.Empty(t, out.String(), "nothing is compiled")
}

func TestBuildService_CompilesExistingRoots(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "client", "index.html"), `<script src="app.ts"></script>`)
	writeFile(t, filepath.Join(dir, "client", "app.ts"), "document.title = 'x';\n")
	writeFile(t, filepath.Join(dir, "server", "main.ts"), "export const port: number = 8080;\n")
	writeFile(t, filepath.Join(dir, "server", "README.md"), "# server\n")

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	var out bytes.Buffer
	svc := NewBuildService(testConfig(dir), logging.Discard(), &out).WithRecorder(rec)
	res, err := svc.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"client", "server"}, res.Roots)
	assert.Equal(t, 4, res.Changed)
	assert.Equal(t, 1, res.Bundled)
	assert.Regexp(t, regexp.MustCompile(`^Compiling client\.\.\. DONE\nCompiling server\.\.\. DONE\n\(4 files in \d+\.\d{3}s\)\n$`), out.String())

	assert.FileExists(t, filepath.Join(dir, "client-dist", "app.js"))
	assert.FileExists(t, filepath.Join(dir, "server-dist", "main.js"))
	assert.FileExists(t, filepath.Join(dir, "server-dist", "README.md"))
	assert.NoDirExists(t, filepath.Join(dir, "dist"))

	html, err := os.ReadFile(filepath.Join(dir, "client-dist", "index.html"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`<script src="app\.js\?[0-9a-f]{8}"></script>`), string(html))

	n, err := testutil.GatherAndCount(reg, "tsdist_build_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildService_IncrementalRerun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "index.ts"), "export default 1;\n")
	writeFile(t, filepath.Join(dir, "src", "assets", "data.json"), "{}")

	cfg := testConfig(dir)

	var out bytes.Buffer
	res, err := NewBuildService(cfg, nil, &out).Build(context.Background(), BuildOptions{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)

	out.Reset()
	res, err = NewBuildService(cfg, nil, &out).Build(context.Background(), BuildOptions{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed)
	assert.Contains(t, out.String(), "(0 files in ")
}

func TestBuildService_SingularSummary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "only.txt"), "x")

	var out bytes.Buffer
	_, err := NewBuildService(testConfig(dir), nil, &out).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "(1 file in ")
}

func TestBuildService_BundleFailureKeepsGoing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "client", "index.html"), `<script src="broken.ts"></script>`)
	writeFile(t, filepath.Join(dir, "client", "broken.ts"), "let = ;\n")
	writeFile(t, filepath.Join(dir, "src", "ok.txt"), "ok")

	var out bytes.Buffer
	res, err := NewBuildService(testConfig(dir), nil, &out).Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, disterrors.IsBuildError(err))
	assert.Len(t, res.Errors, 1)
	assert.Contains(t, out.String(), "Compiling client... FAILED")
	assert.Contains(t, out.String(), "Compiling src... DONE")
	assert.FileExists(t, filepath.Join(dir, "dist", "ok.txt"))
}

func TestBuildService_ConfigurationErrorStops(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "client", "index.html"), `<script src="http://cdn/app.ts"></script>`)
	writeFile(t, filepath.Join(dir, "src", "ok.txt"), "ok")

	res, err := NewBuildService(testConfig(dir), nil, nil).Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, disterrors.IsConfigurationError(err))
	assert.Equal(t, []string{"client"}, res.Roots)
	assert.NoFileExists(t, filepath.Join(dir, "dist", "ok.txt"))
}

// recordingWatcher remembers the roots it was asked to watch.
type recordingWatcher struct {
	roots *[]string
}

func (w recordingWatcher) Watch(_ context.Context, root string, _ func(string)) error {
	*w.roots = append(*w.roots, root)
	return nil
}

type stubBundler struct{}

func (stubBundler) Build(context.Context, bundler.Request) error { return nil }

func (stubBundler) Watch(context.Context, bundler.Request, func(error)) (bundler.Session, error) {
	return stubSession{}, nil
}

type stubSession struct{}

func (stubSession) Close() error { return nil }

func TestBuildService_WatchKeepsCompilers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "client", "index.html"), `<script src="app.ts"></script>`)
	writeFile(t, filepath.Join(dir, "server", "data.txt"), "")

	var watched []string
	svc := NewBuildService(testConfig(dir), nil, nil)
	svc.newWatcher = func(config.WatchConfig, logging.Logger) watcher.Watcher {
		return recordingWatcher{roots: &watched}
	}
	svc.newBundler = func(config.BundleConfig) (bundler.Bundler, error) { return stubBundler{}, nil }

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Build(ctx, BuildOptions{Watch: true})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "client"), filepath.Join(dir, "server")}, watched)
	assert.Len(t, svc.compilers, 2)

	cancel()
	require.NoError(t, svc.Wait(ctx))
	assert.Empty(t, svc.compilers)
}

func TestBuildService_WatchUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "")

	cfg := testConfig(dir)
	cfg.Watch.Backend = config.WatchBackendNone

	_, err := NewBuildService(cfg, nil, nil).Build(context.Background(), BuildOptions{Watch: true})
	require.Error(t, err)
	assert.True(t, disterrors.IsMissingDependency(err))
}
