// Package config provides configuration management for tsdist using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is resolved once at startup into a typed Config value
// that is passed down explicitly; library packages never read viper state.
// It describes the source roots to compile, the bundler and per-file
// compiler options, watch behavior, incremental mode, metrics and logging.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/spf13/viper"
)

// Strategy selects how a source root is compiled.
type Strategy string

const (
	// StrategyBundle discovers entry points in HTML files and bundles each one.
	StrategyBundle Strategy = "bundle"
	// StrategySeparate compiles every module file on its own and copies the rest.
	StrategySeparate Strategy = "separate"
)

// Watch backends.
const (
	WatchBackendFSNotify = "fsnotify"
	WatchBackendNone     = "none"
)

type Config struct {
	Roots       []RootConfig  `yaml:"roots" json:"roots" mapstructure:"roots"`
	Bundle      BundleConfig  `yaml:"bundle" json:"bundle" mapstructure:"bundle"`
	Compile     CompileConfig `yaml:"compile" json:"compile" mapstructure:"compile"`
	Watch       WatchConfig   `yaml:"watch" json:"watch" mapstructure:"watch"`
	Incremental bool          `yaml:"incremental" json:"incremental" mapstructure:"incremental"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Log         LogConfig     `yaml:"log" json:"log" mapstructure:"log"`
}

type RootConfig struct {
	Name     string   `yaml:"name" json:"name" mapstructure:"name"`
	Src      string   `yaml:"src" json:"src" mapstructure:"src"`
	Dest     string   `yaml:"dest" json:"dest" mapstructure:"dest"`
	Strategy Strategy `yaml:"strategy" json:"strategy" mapstructure:"strategy"`
}

// BundleConfig configures whole-bundle compilation of HTML entry points.
type BundleConfig struct {
	Target      string   `yaml:"target" json:"target" mapstructure:"target"`
	Format      string   `yaml:"format" json:"format" mapstructure:"format"`
	Minify      bool     `yaml:"minify" json:"minify" mapstructure:"minify"`
	SourceMap   bool     `yaml:"sourcemap" json:"sourcemap" mapstructure:"sourcemap"`
	Concurrency int      `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency"`
	Extensions  []string `yaml:"extensions" json:"extensions" mapstructure:"extensions"`
}

// CompileConfig configures per-file compilation.
type CompileConfig struct {
	Target     string   `yaml:"target" json:"target" mapstructure:"target"`
	Format     string   `yaml:"format" json:"format" mapstructure:"format"`
	Minify     bool     `yaml:"minify" json:"minify" mapstructure:"minify"`
	SourceMap  bool     `yaml:"sourcemap" json:"sourcemap" mapstructure:"sourcemap"`
	Extensions []string `yaml:"extensions" json:"extensions" mapstructure:"extensions"`
}

type WatchConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" json:"backend" mapstructure:"backend"`
	Stability time.Duration `yaml:"stability" json:"stability" mapstructure:"stability"`
}

type MetricsConfig struct {
	File string `yaml:"file" json:"file" mapstructure:"file"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// Known esbuild targets and output formats.
var (
	ValidTargets = []string{
		"es5", "es6", "es2015", "es2016", "es2017", "es2018", "es2019",
		"es2020", "es2021", "es2022", "esnext",
	}
	ValidFormats = []string{"iife", "cjs", "esm"}
)

// DefaultRoots returns the recognized source roots in the order they are compiled.
func DefaultRoots() []RootConfig {
	return []RootConfig{
		{Name: "client", Src: "client", Dest: "client-dist", Strategy: StrategyBundle},
		{Name: "server", Src: "server", Dest: "server-dist", Strategy: StrategySeparate},
		{Name: "src", Src: "src", Dest: "dist", Strategy: StrategySeparate},
	}
}

// Default returns a fully populated configuration without consulting viper.
func Default() *Config {
	return &Config{
		Roots: DefaultRoots(),
		Bundle: BundleConfig{
			Target:      "es2015",
			Format:      "iife",
			Minify:      true,
			SourceMap:   true,
			Concurrency: 4,
			Extensions:  []string{".ts", ".tsx"},
		},
		Compile: CompileConfig{
			Target:     "es2015",
			Format:     "cjs",
			Minify:     true,
			SourceMap:  true,
			Extensions: []string{".ts", ".tsx"},
		},
		Watch: WatchConfig{
			Backend:   WatchBackendFSNotify,
			Stability: 50 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers default values on v so that file, env and flag
// sources only need to override what they change.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("bundle.target", d.Bundle.Target)
	v.SetDefault("bundle.format", d.Bundle.Format)
	v.SetDefault("bundle.minify", d.Bundle.Minify)
	v.SetDefault("bundle.sourcemap", d.Bundle.SourceMap)
	v.SetDefault("bundle.concurrency", d.Bundle.Concurrency)
	v.SetDefault("bundle.extensions", d.Bundle.Extensions)
	v.SetDefault("compile.target", d.Compile.Target)
	v.SetDefault("compile.format", d.Compile.Format)
	v.SetDefault("compile.minify", d.Compile.Minify)
	v.SetDefault("compile.sourcemap", d.Compile.SourceMap)
	v.SetDefault("compile.extensions", d.Compile.Extensions)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.backend", d.Watch.Backend)
	v.SetDefault("watch.stability", d.Watch.Stability)
	v.SetDefault("incremental", d.Incremental)
	v.SetDefault("metrics.file", d.Metrics.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load resolves the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, disterrors.WrapConfig(err, disterrors.CodeInvalidConfig, "invalid configuration")
	}
	return config, nil
}

// Decode resolves the configuration from v and applies defaults without
// validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, disterrors.WrapConfig(err, disterrors.CodeInvalidConfig, "failed to decode configuration")
	}

	if len(config.Roots) == 0 {
		config.Roots = DefaultRoots()
	}
	for i := range config.Roots {
		r := &config.Roots[i]
		if r.Name == "" {
			r.Name = filepath.Base(r.Src)
		}
		if r.Strategy == "" {
			r.Strategy = StrategySeparate
		}
	}

	config.Bundle.Extensions = normalizeExtensions(config.Bundle.Extensions)
	config.Compile.Extensions = normalizeExtensions(config.Compile.Extensions)

	return &config, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return disterrors.NewConfigurationError(disterrors.CodeInvalidConfig, first.Error()).
			WithContext("field", first.Field)
	}
	return nil
}

// validatePath validates a root path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	return nil
}
