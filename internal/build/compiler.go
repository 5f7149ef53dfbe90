// Package build compiles source roots into distribution trees.
//
// A BundleCompiler treats HTML documents as the roots of a browser bundle
// graph: every TypeScript entry point referenced from a script tag is
// bundled, and the documents are rewritten to load the bundles with a
// cache-busting suffix. A SeparateCompiler compiles every module on its own
// and copies everything else. Both support incremental runs driven by the
// freshness oracle and a watch mode that keeps the output tree current.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
	"github.com/conneroisu/tsdist/internal/metrics"
	"github.com/conneroisu/tsdist/internal/scanner"
	"github.com/conneroisu/tsdist/internal/watcher"
)

// Options configures a compiler for one source root.
type Options struct {
	SrcDir  string
	DestDir string
	// Extensions lists the module extensions that are compiled.
	Extensions  []string
	Incremental bool
	Watch       bool
	// Concurrency bounds the number of bundles built at once.
	Concurrency int
	Logger      logging.Logger
	Recorder    metrics.Recorder
	Watcher     watcher.Watcher
}

// Result summarizes one compile pass.
type Result struct {
	// Changed counts the files written while walking the source root.
	Changed int
	// Bundled counts entry points bundled successfully.
	Bundled int
	// Failed counts entry points or modules that failed to compile.
	Failed int
}

// Compiler compiles one source root.
type Compiler interface {
	// Compile runs the initial pass. In watch mode it then keeps the
	// destination current until ctx is done.
	Compile(ctx context.Context) (Result, error)
	// Close releases watch-mode resources.
	Close() error
}

// compiler holds what both strategies share.
type compiler struct {
	opts        Options
	incremental atomic.Bool
	// mu serializes single-file handling between watch callbacks.
	mu       sync.Mutex
	logger   logging.Logger
	recorder metrics.Recorder
}

func (c *compiler) init(opts Options, component string) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Watcher == nil {
		opts.Watcher = watcher.Unavailable{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	// Watchers report absolute paths; roots must match them.
	opts.SrcDir = absPath(opts.SrcDir)
	opts.DestDir = absPath(opts.DestDir)
	c.opts = opts
	c.logger = opts.Logger.WithComponent(component)
	c.recorder = opts.Recorder
	c.incremental.Store(opts.Incremental)
}

func (c *compiler) destination(src string) (string, error) {
	dest, err := scanner.Destination(c.opts.SrcDir, c.opts.DestDir, src)
	if err != nil {
		return "", disterrors.WrapIO(err, "", "file is outside of the source root", src)
	}
	return dest, nil
}

func (c *compiler) compilable(path string) bool {
	if strings.HasSuffix(path, ".d.ts") {
		return false
	}
	return slices.Contains(c.opts.Extensions, strings.ToLower(filepath.Ext(path)))
}

// copyRaw copies a file that is not compiled, honoring incremental mode.
func (c *compiler) copyRaw(src, dest string) (int, error) {
	if c.incremental.Load() && IsFresh(src, dest) {
		return 0, nil
	}
	if err := copyFile(src, dest); err != nil {
		return 0, err
	}
	return 1, nil
}

// watchTree disables incremental checks and re-runs handle for every file
// added or changed below the source root.
func (c *compiler) watchTree(ctx context.Context, handle func(ctx context.Context, src string) (int, error)) error {
	c.incremental.Store(false)

	err := c.opts.Watcher.Watch(ctx, c.opts.SrcDir, func(path string) {
		if _, err := handle(ctx, path); err != nil {
			c.logger.Error(ctx, err, "Rebuild failed", "file", path)
			return
		}
		c.recorder.IncRebuild(metrics.RebuildFile)
		c.logger.Info(ctx, "rebuilt "+path)
	})
	if err != nil {
		return err
	}
	c.logger.Info(ctx, fmt.Sprintf("Watching %s for changes...", c.opts.SrcDir))
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// compiledFile maps a module path to its compiled artifact path.
func compiledFile(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".js"
}
