package build

import (
	"context"

	"github.com/conneroisu/tsdist/internal/bundler"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/scanner"
)

// SeparateCompiler compiles each module of a source root on its own and
// copies every other file.
type SeparateCompiler struct {
	compiler
	transpiler bundler.Transpiler
}

var _ Compiler = (*SeparateCompiler)(nil)

func NewSeparateCompiler(opts Options, t bundler.Transpiler) *SeparateCompiler {
	c := &SeparateCompiler{transpiler: t}
	c.init(opts, "separate")
	return c
}

// Compile walks the source root. A module that fails to compile does not
// stop the walk; the failures are returned together at the end, or logged
// in watch mode.
func (c *SeparateCompiler) Compile(ctx context.Context) (Result, error) {
	var res Result
	collector := disterrors.NewErrorCollector()

	changed, err := scanner.Count(scanner.Walk(c.opts.SrcDir, c.opts.DestDir), func(p scanner.FilePair) (int, error) {
		n, err := c.handle(ctx, p.Src, p.Dest)
		if err != nil && disterrors.IsBuildError(err) {
			res.Failed++
			collector.AddError(err)
			return 0, nil
		}
		return n, err
	})
	res.Changed = changed
	if err != nil {
		return res, err
	}

	if !c.opts.Watch {
		return res, collector.Err()
	}

	for _, err := range collector.GetAllErrors() {
		c.logger.Error(ctx, err, "Compile failed")
	}
	if err := c.watchTree(ctx, c.handleFile); err != nil {
		return res, err
	}
	return res, nil
}

func (c *SeparateCompiler) handleFile(ctx context.Context, src string) (int, error) {
	dest, err := c.destination(src)
	if err != nil {
		return 0, err
	}
	return c.handle(ctx, src, dest)
}

func (c *SeparateCompiler) handle(ctx context.Context, src, dest string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.compilable(src) {
		return c.copyRaw(src, dest)
	}

	if c.incremental.Load() && IsFresh(src, compiledFile(dest)) {
		return 0, nil
	}
	err := c.transpiler.Transpile(ctx, bundler.FileRequest{
		Src:     src,
		Outdir:  c.opts.DestDir,
		Outbase: c.opts.SrcDir,
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *SeparateCompiler) Close() error {
	return nil
}
