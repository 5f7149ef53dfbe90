package bundler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/evanw/esbuild/pkg/api"
)

// Options configures the esbuild invocation shared by every request.
type Options struct {
	Target    string
	Format    string
	Platform  string
	Minify    bool
	SourceMap bool
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var formats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"cjs":  api.FormatCommonJS,
	"esm":  api.FormatESModule,
}

// Esbuild implements Bundler and Transpiler with the esbuild Go API.
type Esbuild struct {
	opts Options
}

var (
	_ Bundler    = (*Esbuild)(nil)
	_ Transpiler = (*Esbuild)(nil)
)

// NewEsbuild validates opts and returns a ready bundler.
func NewEsbuild(opts Options) (*Esbuild, error) {
	if opts.Target == "" {
		opts.Target = "es2015"
	}
	if opts.Format == "" {
		opts.Format = "iife"
	}
	if _, ok := targets[strings.ToLower(opts.Target)]; !ok {
		return nil, disterrors.NewConfigurationError(disterrors.CodeInvalidConfig,
			fmt.Sprintf("unsupported target %q", opts.Target))
	}
	if _, ok := formats[strings.ToLower(opts.Format)]; !ok {
		return nil, disterrors.NewConfigurationError(disterrors.CodeInvalidConfig,
			fmt.Sprintf("unsupported format %q", opts.Format))
	}
	return &Esbuild{opts: opts}, nil
}

func (e *Esbuild) base() api.BuildOptions {
	o := api.BuildOptions{
		Target:            targets[strings.ToLower(e.opts.Target)],
		Format:            formats[strings.ToLower(e.opts.Format)],
		MinifyWhitespace:  e.opts.Minify,
		MinifyIdentifiers: e.opts.Minify,
		MinifySyntax:      e.opts.Minify,
		Write:             true,
		LogLevel:          api.LogLevelSilent,
	}
	if e.opts.SourceMap {
		o.Sourcemap = api.SourceMapLinked
	}
	switch e.opts.Platform {
	case "node":
		o.Platform = api.PlatformNode
	case "neutral":
		o.Platform = api.PlatformNeutral
	default:
		o.Platform = api.PlatformBrowser
	}
	return o
}

func (e *Esbuild) bundleOptions(req Request) api.BuildOptions {
	o := e.base()
	o.EntryPoints = []string{req.EntryPoint}
	o.Outfile = req.Outfile
	o.Bundle = true
	return o
}

func (e *Esbuild) Build(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := api.Build(e.bundleOptions(req))
	return messagesError(disterrors.CodeBundleFailed, req.Name, result.Errors)
}

func (e *Esbuild) Transpile(ctx context.Context, req FileRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := e.base()
	o.EntryPoints = []string{req.Src}
	o.Outdir = req.Outdir
	o.Outbase = req.Outbase
	result := api.Build(o)
	return messagesError(disterrors.CodeTranspileFailed, req.Src, result.Errors)
}

// Watch starts an esbuild context for req. The first end-of-build callback
// belongs to the initial build and is reported through the return value;
// every later one is a rebuild and goes to onRebuild.
func (e *Esbuild) Watch(ctx context.Context, req Request, onRebuild func(error)) (Session, error) {
	initial := make(chan error, 1)
	var (
		mu     sync.Mutex
		builds int
	)

	o := e.bundleOptions(req)
	o.Plugins = append(o.Plugins, api.Plugin{
		Name: "tsdist-rebuild",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				err := messagesError(disterrors.CodeBundleFailed, req.Name, result.Errors)

				mu.Lock()
				builds++
				first := builds == 1
				mu.Unlock()

				if first {
					initial <- err
				} else if onRebuild != nil {
					onRebuild(err)
				}
				return api.OnEndResult{}, nil
			})
		},
	})

	bctx, cerr := api.Context(o)
	if cerr != nil {
		return nil, messagesError(disterrors.CodeBundleFailed, req.Name, cerr.Errors)
	}

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		bctx.Dispose()
		return nil, disterrors.NewBuildError(disterrors.CodeBundleFailed,
			fmt.Sprintf("failed to watch %s", req.Name), err)
	}

	s := &session{ctx: bctx, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	select {
	case err := <-initial:
		return s, err
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

type session struct {
	once sync.Once
	ctx  api.BuildContext
	done chan struct{}
}

// Close stops watching and releases the esbuild context. It is idempotent.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.ctx.Dispose()
	})
	return nil
}

// messagesError converts esbuild diagnostics into a build error, or nil when
// msgs is empty.
func messagesError(code, name string, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		errs = append(errs, toBuildError(name, m))
	}

	de := disterrors.NewBuildError(code,
		fmt.Sprintf("%s failed with %d error(s)", name, len(msgs)), errors.Join(errs...))
	if loc := msgs[0].Location; loc != nil {
		de = de.WithLocation(loc.File, loc.Line, loc.Column)
	}
	return de
}

func toBuildError(name string, m api.Message) *disterrors.BuildError {
	be := &disterrors.BuildError{
		EntryPoint: name,
		Message:    m.Text,
		Severity:   disterrors.ErrorSeverityError,
	}
	if m.Location != nil {
		be.File = m.Location.File
		be.Line = m.Location.Line
		be.Column = m.Location.Column
	}
	return be
}
