package build

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/conneroisu/tsdist/internal/bundler"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
	"github.com/conneroisu/tsdist/internal/metrics"
	"github.com/conneroisu/tsdist/internal/scanner"
	"golang.org/x/sync/errgroup"
)

// BundleCompiler bundles the entry points referenced from HTML documents.
type BundleCompiler struct {
	compiler
	bundler  bundler.Bundler
	rewriter *HTMLRewriter
	entries  *EntryPoints

	sessMu   sync.Mutex
	sessions []bundler.Session
}

var _ Compiler = (*BundleCompiler)(nil)

func NewBundleCompiler(opts Options, b bundler.Bundler) *BundleCompiler {
	c := &BundleCompiler{bundler: b, entries: NewEntryPoints()}
	c.init(opts, "bundle")
	c.rewriter = &HTMLRewriter{
		SrcDir:     c.opts.SrcDir,
		DestDir:    c.opts.DestDir,
		Extensions: c.opts.Extensions,
		Logger:     c.logger,
	}
	return c
}

// Entries exposes the entry points discovered by the last scan.
func (c *BundleCompiler) Entries() *EntryPoints {
	return c.entries
}

// Compile scans the source root, bundles every discovered entry point and
// then rewrites the documents that reference them so the cache-busting
// suffixes match the fresh bundles.
func (c *BundleCompiler) Compile(ctx context.Context) (Result, error) {
	var res Result

	changed, err := scanner.Count(scanner.Walk(c.opts.SrcDir, c.opts.DestDir), func(p scanner.FilePair) (int, error) {
		return c.scanFile(ctx, p.Src, p.Dest)
	})
	res.Changed = changed
	if err != nil {
		return res, err
	}

	collector := disterrors.NewErrorCollector()
	res.Bundled, res.Failed = c.bundleAll(ctx, collector)

	// Cache-busting pass; strictly after every bundle has settled.
	for _, html := range c.entries.AllDependents() {
		if err := c.refresh(ctx, html); err != nil {
			return res, err
		}
	}

	if !c.opts.Watch {
		return res, collector.Err()
	}

	if err := collector.Err(); err != nil {
		c.logger.Error(ctx, err, "Bundle failed")
	}
	for _, diag := range collector.GetErrors() {
		c.logger.Warn(ctx, nil, diag.Message,
			"entry", diag.EntryPoint, "file", diag.File, "line", diag.Line, "column", diag.Column)
	}
	if err := c.watchTree(ctx, c.handleFile); err != nil {
		return res, err
	}
	return res, nil
}

// scanFile handles one file of the initial walk, recording entry points.
func (c *BundleCompiler) scanFile(ctx context.Context, src, dest string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsHTML(dest) {
		return c.copyRaw(src, dest)
	}
	n, entries, err := c.rewriter.Rewrite(ctx, src, dest)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		c.entries.Add(entry, src)
	}
	return n, nil
}

// handleFile handles a single changed file after the initial pass. The
// entry point map is not extended any more.
func (c *BundleCompiler) handleFile(ctx context.Context, src string) (int, error) {
	dest, err := c.destination(src)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsHTML(dest) {
		return c.copyRaw(src, dest)
	}
	n, entries, err := c.rewriter.Rewrite(ctx, src, dest)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if !c.entries.Has(entry) {
			c.logger.Warn(ctx, nil, "New entry point is not bundled until the next build", "entry", entry, "html", src)
		}
	}
	return n, nil
}

// refresh rewrites one dependent document after its bundles were rebuilt.
func (c *BundleCompiler) refresh(ctx context.Context, html string) error {
	_, err := c.handleFile(ctx, html)
	return err
}

func (c *BundleCompiler) request(entry string) bundler.Request {
	return bundler.Request{
		Name:       entry,
		EntryPoint: filepath.Join(c.opts.SrcDir, filepath.FromSlash(entry)),
		Outfile:    filepath.Join(c.opts.DestDir, filepath.FromSlash(compiledPath(entry))),
	}
}

// bundleAll builds every entry point concurrently. A failing entry point
// never cancels its siblings; failures are added to collector.
func (c *BundleCompiler) bundleAll(ctx context.Context, collector *disterrors.ErrorCollector) (bundled, failed int) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(c.opts.Concurrency)

	for _, entry := range c.entries.Keys() {
		g.Go(func() error {
			op := logging.StartOperation(c.logger.With("entry", entry), "bundle")
			err := c.bundleOne(ctx, entry)
			elapsed := op.Elapsed()
			if err == nil {
				elapsed = op.End(ctx)
			}
			c.recorder.ObserveBundleDuration(elapsed)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.recorder.IncBundleResult(metrics.BundleFailed)
				collector.AddError(err)
				c.recordDiagnostics(entry, err, collector)
				return nil
			}
			bundled++
			c.recorder.IncBundleResult(metrics.BundleSuccess)
			return nil
		})
	}
	_ = g.Wait()
	return bundled, failed
}

func (c *BundleCompiler) bundleOne(ctx context.Context, entry string) error {
	req := c.request(entry)
	if !c.opts.Watch {
		return c.bundler.Build(ctx, req)
	}

	session, err := c.bundler.Watch(ctx, req, func(err error) {
		c.rebundled(ctx, entry, err)
	})
	if session != nil {
		c.sessMu.Lock()
		c.sessions = append(c.sessions, session)
		c.sessMu.Unlock()
	}
	return err
}

// rebundled runs after a watch-mode rebuild of entry.
func (c *BundleCompiler) rebundled(ctx context.Context, entry string, err error) {
	if err != nil {
		c.recorder.IncBundleResult(metrics.BundleFailed)
		c.logger.Error(ctx, err, "Rebundle failed", "entry", entry)
		return
	}
	c.recorder.IncBundleResult(metrics.BundleSuccess)
	c.recorder.IncRebuild(metrics.RebuildBundle)
	c.logger.Info(ctx, "rebundled "+entry)

	for _, html := range c.entries.Dependents(entry) {
		if err := c.refresh(ctx, html); err != nil {
			c.logger.Error(ctx, err, "Failed to update document", "html", html)
		}
	}
}

// recordDiagnostics keeps per-message diagnostics of a failed bundle.
func (c *BundleCompiler) recordDiagnostics(entry string, err error, collector *disterrors.ErrorCollector) {
	var be *disterrors.BuildError
	for _, e := range flatten(err) {
		if errors.As(e, &be) {
			diag := *be
			diag.EntryPoint = entry
			collector.Add(diag)
		}
	}
}

// flatten expands joined errors reachable from err.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	if next := errors.Unwrap(err); next != nil {
		return flatten(next)
	}
	return []error{err}
}

// Close disposes the watch-mode bundler sessions.
func (c *BundleCompiler) Close() error {
	c.sessMu.Lock()
	sessions := c.sessions
	c.sessions = nil
	c.sessMu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
