package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/tsdist/internal/build"
	"github.com/conneroisu/tsdist/internal/bundler"
	"github.com/conneroisu/tsdist/internal/config"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
	"github.com/conneroisu/tsdist/internal/metrics"
	"github.com/conneroisu/tsdist/internal/watcher"
)

// BuildService compiles every configured source root that exists on disk.
type BuildService struct {
	config   *config.Config
	logger   logging.Logger
	recorder metrics.Recorder
	out      io.Writer

	// Factories are swapped out by tests.
	newBundler    func(config.BundleConfig) (bundler.Bundler, error)
	newTranspiler func(config.CompileConfig) (bundler.Transpiler, error)
	newWatcher    func(config.WatchConfig, logging.Logger) watcher.Watcher

	mu        sync.Mutex
	compilers []build.Compiler
}

// NewBuildService creates a new build service. Progress lines go to out.
func NewBuildService(cfg *config.Config, logger logging.Logger, out io.Writer) *BuildService {
	if logger == nil {
		logger = logging.Discard()
	}
	if out == nil {
		out = io.Discard
	}
	return &BuildService{
		config:        cfg,
		logger:        logger.WithComponent("build"),
		recorder:      metrics.NoopRecorder{},
		out:           out,
		newBundler:    newEsbuildBundler,
		newTranspiler: newEsbuildTranspiler,
		newWatcher:    watcher.New,
	}
}

// WithRecorder sets the metrics recorder.
func (s *BuildService) WithRecorder(r metrics.Recorder) *BuildService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// BuildOptions contains options for the build process
type BuildOptions struct {
	Incremental bool
	Watch       bool
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Duration time.Duration
	// Changed is the number of files written across all roots.
	Changed int
	// Bundled is the number of entry points bundled successfully.
	Bundled int
	Roots   []string
	Errors  []error
}

// Build compiles the configured roots in order. Roots missing on disk are
// skipped; when none exists a configuration error is returned and nothing
// is compiled. In watch mode the compilers keep running after Build returns
// until ctx is done or Close is called.
func (s *BuildService) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	roots := s.existingRoots()
	if len(roots) == 0 {
		return result, disterrors.NewConfigurationError(disterrors.CodeNoSourceRoots,
			"Your source files must be in a directory named client/, server/, or src/")
	}

	for _, root := range roots {
		fmt.Fprintf(s.out, "Compiling %s... ", root.Name)

		res, err := s.compileRoot(ctx, root, opts)
		result.Changed += res.Changed
		result.Bundled += res.Bundled
		result.Roots = append(result.Roots, root.Name)
		s.recorder.AddChangedFiles(root.Name, res.Changed)

		if err != nil {
			fmt.Fprintln(s.out, "FAILED")
			// Bundle and module failures leave the other roots unaffected.
			if disterrors.IsRecoverable(err) {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Duration = time.Since(start)
			result.Errors = append(result.Errors, err)
			return result, err
		}
		fmt.Fprintln(s.out, "DONE")
	}

	result.Duration = time.Since(start)
	s.recorder.ObserveBuildDuration(result.Duration)
	fmt.Fprintf(s.out, "(%s in %.3fs)\n", pluralFiles(result.Changed), result.Duration.Seconds())

	return result, errors.Join(result.Errors...)
}

func pluralFiles(n int) string {
	if n == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", n)
}

func (s *BuildService) existingRoots() []config.RootConfig {
	var roots []config.RootConfig
	for _, root := range s.config.Roots {
		if _, err := os.Stat(root.Src); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn(context.Background(), err, "Skipping unreadable source root", "root", root.Src)
			}
			continue
		}
		roots = append(roots, root)
	}
	return roots
}

func (s *BuildService) compileRoot(ctx context.Context, root config.RootConfig, opts BuildOptions) (build.Result, error) {
	var c build.Compiler

	logger := s.logger.With("root", root.Name)
	common := build.Options{
		SrcDir:      root.Src,
		DestDir:     root.Dest,
		Incremental: opts.Incremental,
		Watch:       opts.Watch,
		Logger:      logger,
		Recorder:    s.recorder,
	}
	if opts.Watch {
		common.Watcher = s.newWatcher(s.config.Watch, logger)
	}

	switch root.Strategy {
	case config.StrategyBundle:
		b, err := s.newBundler(s.config.Bundle)
		if err != nil {
			return build.Result{}, err
		}
		common.Extensions = s.config.Bundle.Extensions
		common.Concurrency = s.config.Bundle.Concurrency
		c = build.NewBundleCompiler(common, b)
	default:
		t, err := s.newTranspiler(s.config.Compile)
		if err != nil {
			return build.Result{}, err
		}
		common.Extensions = s.config.Compile.Extensions
		c = build.NewSeparateCompiler(common, t)
	}

	res, err := c.Compile(ctx)
	if opts.Watch && err == nil {
		s.mu.Lock()
		s.compilers = append(s.compilers, c)
		s.mu.Unlock()
	} else {
		_ = c.Close()
	}
	return res, err
}

// Wait blocks until ctx is done and then releases the watch-mode compilers.
func (s *BuildService) Wait(ctx context.Context) error {
	<-ctx.Done()
	return s.Close()
}

// Close releases every compiler kept alive for watch mode.
func (s *BuildService) Close() error {
	s.mu.Lock()
	compilers := s.compilers
	s.compilers = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range compilers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newEsbuildBundler(cfg config.BundleConfig) (bundler.Bundler, error) {
	b, err := bundler.NewEsbuild(bundler.Options{
		Target:    cfg.Target,
		Format:    cfg.Format,
		Platform:  "browser",
		Minify:    cfg.Minify,
		SourceMap: cfg.SourceMap,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newEsbuildTranspiler(cfg config.CompileConfig) (bundler.Transpiler, error) {
	b, err := bundler.NewEsbuild(bundler.Options{
		Target:    cfg.Target,
		Format:    cfg.Format,
		Platform:  "node",
		Minify:    cfg.Minify,
		SourceMap: cfg.SourceMap,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
