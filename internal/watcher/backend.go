package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/conneroisu/tsdist/internal/config"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
)

// Watcher is the directory watching capability used by watch-mode builds.
type Watcher interface {
	// Watch starts watching root and returns once the watch is in place.
	// onEvent is called with the path of every added or changed file until
	// ctx is done. Paths are expressed below root as it was given.
	Watch(ctx context.Context, root string, onEvent func(path string)) error
}

// New returns the watcher selected by cfg.
func New(cfg config.WatchConfig, logger logging.Logger) Watcher {
	switch cfg.Backend {
	case config.WatchBackendNone:
		return Unavailable{Reason: "watch backend is disabled"}
	default:
		return &FSNotify{Stability: cfg.Stability, Logger: logger}
	}
}

// FSNotify watches with the operating system's notification facility.
type FSNotify struct {
	Stability time.Duration
	Logger    logging.Logger
}

func (f *FSNotify) Watch(ctx context.Context, root string, onEvent func(path string)) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return disterrors.WrapIO(err, "", "failed to resolve watch root", root)
	}

	fw, err := NewFileWatcher(f.Stability, f.Logger)
	if err != nil {
		return err
	}
	if err := fw.AddRecursive(absRoot); err != nil {
		_ = fw.Stop()
		return disterrors.WrapIO(err, "", "failed to watch directory", root)
	}

	fw.AddFilter(NoHiddenFilter(absRoot))
	fw.AddHandler(func(events []ChangeEvent) error {
		for _, e := range events {
			if e.Type == EventTypeCreated || e.Type == EventTypeModified {
				onEvent(underRoot(root, absRoot, e.Path))
			}
		}
		return nil
	})

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}
	go func() {
		<-ctx.Done()
		_ = fw.Stop()
	}()
	return nil
}

// underRoot re-expresses an absolute event path below root.
func underRoot(root, absRoot, path string) string {
	if filepath.IsAbs(root) {
		return path
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil {
		return path
	}
	return filepath.Join(root, rel)
}

// Unavailable is the watcher used when no watch capability exists. Every
// attempt to watch fails with a missing optional dependency error.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Watch(context.Context, string, func(string)) error {
	reason := u.Reason
	if reason == "" {
		reason = "no file watcher is available"
	}
	return disterrors.NewMissingDependencyError(disterrors.CodeWatchUnavailable,
		fmt.Sprintf("cannot watch for changes: %s", reason), nil)
}
