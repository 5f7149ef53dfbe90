// Package bundler drives the JavaScript bundler that turns TypeScript entry
// points into browser bundles and per-file modules.
package bundler

import (
	"context"
)

// Request describes one bundle: a single entry point written to Outfile.
type Request struct {
	// Name identifies the entry point in logs and errors, usually its
	// source-root relative path.
	Name       string
	EntryPoint string
	Outfile    string
}

// FileRequest describes a per-file compilation of Src. The output path is
// Src relative to Outbase, mirrored under Outdir.
type FileRequest struct {
	Src     string
	Outdir  string
	Outbase string
}

// Session is a live watch-mode build.
type Session interface {
	Close() error
}

// Bundler builds entry points.
type Bundler interface {
	// Build bundles req once.
	Build(ctx context.Context, req Request) error
	// Watch performs the initial build of req and keeps rebuilding it when
	// its inputs change, calling onRebuild after every rebuild with that
	// rebuild's error. The returned error is the initial build's outcome;
	// a failed initial build still yields a live session.
	Watch(ctx context.Context, req Request, onRebuild func(error)) (Session, error)
}

// Transpiler compiles one module without bundling its imports.
type Transpiler interface {
	Transpile(ctx context.Context, req FileRequest) error
}
