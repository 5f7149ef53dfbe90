package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/conneroisu/tsdist/internal/bundler"
	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBundler writes a small artifact per request and fails the entry
// points listed in fail.
type fakeBundler struct {
	mu       sync.Mutex
	fail     map[string]bool
	built    []string
	rebuilds map[string]func(error)
}

func (f *fakeBundler) Build(_ context.Context, req bundler.Request) error {
	f.mu.Lock()
	f.built = append(f.built, req.Name)
	fail := f.fail[req.Name]
	f.mu.Unlock()

	if fail {
		return disterrors.NewBuildError(disterrors.CodeBundleFailed, req.Name+" failed",
			&disterrors.BuildError{File: req.EntryPoint, Line: 1, Message: "syntax error"})
	}
	if err := os.MkdirAll(filepath.Dir(req.Outfile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Outfile, []byte("bundle of "+req.Name), 0o644)
}

func (f *fakeBundler) Watch(ctx context.Context, req bundler.Request, onRebuild func(error)) (bundler.Session, error) {
	f.mu.Lock()
	if f.rebuilds == nil {
		f.rebuilds = make(map[string]func(error))
	}
	f.rebuilds[req.Name] = onRebuild
	f.mu.Unlock()
	return fakeSession{}, f.Build(ctx, req)
}

type fakeSession struct{}

func (fakeSession) Close() error { return nil }

type fakeTranspiler struct {
	mu   sync.Mutex
	srcs []string
	fail map[string]bool
}

func (f *fakeTranspiler) Transpile(_ context.Context, req bundler.FileRequest) error {
	f.mu.Lock()
	f.srcs = append(f.srcs, req.Src)
	f.mu.Unlock()

	if f.fail[filepath.Base(req.Src)] {
		return disterrors.NewBuildError(disterrors.CodeTranspileFailed, "transpile failed", nil)
	}
	rel, err := filepath.Rel(req.Outbase, req.Src)
	if err != nil {
		return err
	}
	out := compiledFile(filepath.Join(req.Outdir, rel))
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("compiled"), 0o644)
}

// fakeWatcher captures the event callback so tests can emit events.
type fakeWatcher struct {
	mu      sync.Mutex
	root    string
	onEvent func(string)
}

func (f *fakeWatcher) Watch(_ context.Context, root string, onEvent func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.root = root
	f.onEvent = onEvent
	return nil
}

func (f *fakeWatcher) emit(path string) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	fn(path)
}

func clientOptions(root string) Options {
	return Options{
		SrcDir:      filepath.Join(root, "client"),
		DestDir:     filepath.Join(root, "client-dist"),
		Extensions:  []string{".ts", ".tsx"},
		Concurrency: 2,
	}
}

var bustedApp = regexp.MustCompile(`<script src="app\.js\?[0-9a-f]{8}"></script>`)

func TestBundleCompilerBundlesEntryPoints(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<html><script src="app.ts"></script></html>`)
	writeFile(t, filepath.Join(opts.SrcDir, "app.ts"), "console.log('app')")
	writeFile(t, filepath.Join(opts.SrcDir, "style.css"), "body{}")

	fb := &fakeBundler{}
	c := NewBundleCompiler(opts, fb)
	res, err := c.Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Changed)
	assert.Equal(t, 1, res.Bundled)
	assert.Equal(t, []string{"app.ts"}, fb.built)
	assert.Equal(t, []string{filepath.Join(opts.SrcDir, "index.html")}, c.Entries().Dependents("app.ts"))

	html, err := os.ReadFile(filepath.Join(opts.DestDir, "index.html"))
	require.NoError(t, err)
	assert.Regexp(t, bustedApp, string(html))
	assert.FileExists(t, filepath.Join(opts.DestDir, "app.js"))
	assert.FileExists(t, filepath.Join(opts.DestDir, "style.css"))
}

func TestBundleCompilerRootedEntryPoint(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "pages", "a", "index.html"), `<script src="/shared/app.ts"></script>`)
	writeFile(t, filepath.Join(opts.SrcDir, "pages", "b.html"), `<script src="../shared/app.ts"></script>`)
	writeFile(t, filepath.Join(opts.SrcDir, "shared", "app.ts"), "")

	fb := &fakeBundler{}
	c := NewBundleCompiler(opts, fb)
	_, err := c.Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"shared/app.ts"}, c.Entries().Keys())
	assert.Len(t, c.Entries().Dependents("shared/app.ts"), 2)
	assert.Equal(t, []string{"shared/app.ts"}, fb.built, "each entry point is bundled once")

	suffix := CacheBust(filepath.Join(opts.DestDir, "shared", "app.js"))
	require.NotEmpty(t, suffix)
	a, err := os.ReadFile(filepath.Join(opts.DestDir, "pages", "a", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, `<script src="/shared/app.js`+suffix+`"></script>`, string(a))
	b, err := os.ReadFile(filepath.Join(opts.DestDir, "pages", "b.html"))
	require.NoError(t, err)
	assert.Equal(t, `<script src="../shared/app.js`+suffix+`"></script>`, string(b))
}

func TestBundleCompilerFailuresDoNotBlockOthers(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"),
		`<script src="bad1.ts"></script><script src="app.ts"></script><script src="bad2.ts"></script>`)

	fb := &fakeBundler{fail: map[string]bool{"bad1.ts": true, "bad2.ts": true}}
	c := NewBundleCompiler(opts, fb)
	res, err := c.Compile(context.Background())
	require.Error(t, err)
	assert.True(t, disterrors.IsBuildError(err))
	assert.Contains(t, err.Error(), "bad1.ts")
	assert.Contains(t, err.Error(), "bad2.ts")

	assert.Equal(t, 1, res.Bundled)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, fb.built, 3)

	html, readErr := os.ReadFile(filepath.Join(opts.DestDir, "index.html"))
	require.NoError(t, readErr)
	assert.Regexp(t, bustedApp, string(html), "the good entry point is still cache-busted")
}

func TestBundleCompilerExternalReference(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<script src="https://cdn.example.com/app.ts"></script>`)

	fb := &fakeBundler{}
	_, err := NewBundleCompiler(opts, fb).Compile(context.Background())
	require.Error(t, err)
	assert.True(t, disterrors.IsConfigurationError(err))
	assert.NoFileExists(t, filepath.Join(opts.DestDir, "index.html"))
	assert.Empty(t, fb.built)
}

func TestBundleCompilerIncrementalRerun(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	opts.Incremental = true
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<script src="app.ts"></script>`)
	writeFile(t, filepath.Join(opts.SrcDir, "app.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "img", "logo.svg"), "<svg/>")
	tick()

	res, err := NewBundleCompiler(opts, &fakeBundler{}).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Changed)

	res, err = NewBundleCompiler(opts, &fakeBundler{}).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed)

	tick()
	writeFile(t, filepath.Join(opts.SrcDir, "img", "logo.svg"), "<svg></svg>")
	res, err = NewBundleCompiler(opts, &fakeBundler{}).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
}

func TestBundleCompilerMissingRoot(t *testing.T) {
	opts := clientOptions(t.TempDir())
	res, err := NewBundleCompiler(opts, &fakeBundler{}).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestBundleCompilerWatch(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	opts.Watch = true
	opts.Incremental = true
	fw := &fakeWatcher{}
	opts.Watcher = fw

	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<script src="app.ts"></script>`)
	writeFile(t, filepath.Join(opts.SrcDir, "notes.txt"), "v1")

	fb := &fakeBundler{}
	c := NewBundleCompiler(opts, fb)
	_, err := c.Compile(context.Background())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, opts.SrcDir, fw.root)
	assert.False(t, c.incremental.Load(), "watch mode disables incremental checks")

	// A file change is copied again.
	writeFile(t, filepath.Join(opts.SrcDir, "notes.txt"), "v2")
	fw.emit(filepath.Join(opts.SrcDir, "notes.txt"))
	notes, err := os.ReadFile(filepath.Join(opts.DestDir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(notes))

	// A rebuild refreshes the cache buster of the dependents.
	require.NoError(t, os.WriteFile(filepath.Join(opts.DestDir, "app.js"), []byte("new bundle"), 0o644))
	fb.mu.Lock()
	rebuilt := fb.rebuilds["app.ts"]
	fb.mu.Unlock()
	require.NotNil(t, rebuilt)
	rebuilt(nil)

	html, err := os.ReadFile(filepath.Join(opts.DestDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), CacheBust(filepath.Join(opts.DestDir, "app.js")))

	// A failed rebuild leaves the document alone.
	rebuilt(errors.New("boom"))
	again, err := os.ReadFile(filepath.Join(opts.DestDir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, html, again)
}

func TestBundleCompilerWatchUnavailable(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	opts.Watch = true
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<script src="app.ts"></script>`)

	c := NewBundleCompiler(opts, &fakeBundler{})
	_, err := c.Compile(context.Background())
	require.Error(t, err)
	assert.True(t, disterrors.IsMissingDependency(err))
	assert.NoError(t, c.Close())
}

func serverOptions(root string) Options {
	return Options{
		SrcDir:     filepath.Join(root, "server"),
		DestDir:    filepath.Join(root, "server-dist"),
		Extensions: []string{".ts", ".tsx"},
	}
}

func TestSeparateCompiler(t *testing.T) {
	root := t.TempDir()
	opts := serverOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "main.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "lib", "db.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "types", "api.d.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "config.json"), "{}")

	script := filepath.Join(opts.SrcDir, "run.sh")
	writeFile(t, script, "#!/bin/sh\n")
	require.NoError(t, os.Chmod(script, 0o755))

	ft := &fakeTranspiler{}
	res, err := NewSeparateCompiler(opts, ft).Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Changed)
	assert.Len(t, ft.srcs, 2)
	assert.FileExists(t, filepath.Join(opts.DestDir, "main.js"))
	assert.FileExists(t, filepath.Join(opts.DestDir, "lib", "db.js"))
	assert.FileExists(t, filepath.Join(opts.DestDir, "types", "api.d.ts"))
	assert.FileExists(t, filepath.Join(opts.DestDir, "config.json"))

	info, err := os.Stat(filepath.Join(opts.DestDir, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSeparateCompilerIncremental(t *testing.T) {
	root := t.TempDir()
	opts := serverOptions(root)
	opts.Incremental = true
	writeFile(t, filepath.Join(opts.SrcDir, "main.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "data.txt"), "")
	tick()

	ft := &fakeTranspiler{}
	res, err := NewSeparateCompiler(opts, ft).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)

	res, err = NewSeparateCompiler(opts, ft).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed)
	assert.Len(t, ft.srcs, 1, "fresh module output is not recompiled")
}

func TestSeparateCompilerCollectsFailures(t *testing.T) {
	root := t.TempDir()
	opts := serverOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "bad.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "good.ts"), "")
	writeFile(t, filepath.Join(opts.SrcDir, "zzz.txt"), "")

	ft := &fakeTranspiler{fail: map[string]bool{"bad.ts": true}}
	res, err := NewSeparateCompiler(opts, ft).Compile(context.Background())
	require.Error(t, err)
	assert.True(t, disterrors.IsBuildError(err))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Changed)
}

func TestSeparateCompilerWatch(t *testing.T) {
	root := t.TempDir()
	opts := serverOptions(root)
	opts.Watch = true
	fw := &fakeWatcher{}
	opts.Watcher = fw
	writeFile(t, filepath.Join(opts.SrcDir, "main.ts"), "")

	ft := &fakeTranspiler{}
	_, err := NewSeparateCompiler(opts, ft).Compile(context.Background())
	require.NoError(t, err)

	added := filepath.Join(opts.SrcDir, "added.ts")
	writeFile(t, added, "")
	fw.emit(added)
	assert.FileExists(t, filepath.Join(opts.DestDir, "added.js"))
	assert.Equal(t, []string{filepath.Join(opts.SrcDir, "main.ts"), added}, ft.srcs)
}

func TestCompilersProduceOneOutputPerFile(t *testing.T) {
	root := t.TempDir()
	opts := serverOptions(root)
	const n = 12
	for i := 0; i < n; i++ {
		writeFile(t, filepath.Join(opts.SrcDir, fmt.Sprintf("dir%d", i%3), fmt.Sprintf("f%d.txt", i)), "x")
	}
	writeFile(t, filepath.Join(opts.SrcDir, ".hidden"), "x")

	res, err := NewSeparateCompiler(opts, &fakeTranspiler{}).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, res.Changed)

	count := 0
	require.NoError(t, filepath.WalkDir(opts.DestDir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return err
	}))
	assert.Equal(t, n, count)
}

func TestBundleCompilerWithEsbuild(t *testing.T) {
	root := t.TempDir()
	opts := clientOptions(root)
	writeFile(t, filepath.Join(opts.SrcDir, "index.html"), `<html><body><script src="app.ts"></script></body></html>`)
	writeFile(t, filepath.Join(opts.SrcDir, "app.ts"), "import { n } from './lib/n';\ndocument.title = String(n * 2);\n")
	writeFile(t, filepath.Join(opts.SrcDir, "lib", "n.ts"), "export const n: number = 21;\n")

	esb, err := bundler.NewEsbuild(bundler.Options{Target: "es6", Format: "iife", Minify: true, SourceMap: true})
	require.NoError(t, err)

	res, err := NewBundleCompiler(opts, esb).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bundled)

	js, err := os.ReadFile(filepath.Join(opts.DestDir, "app.js"))
	require.NoError(t, err)
	assert.NotContains(t, string(js), "import")
	assert.FileExists(t, filepath.Join(opts.DestDir, "app.js.map"))

	html, err := os.ReadFile(filepath.Join(opts.DestDir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t,
		`<html><body><script src="app.js`+CacheBust(filepath.Join(opts.DestDir, "app.js"))+`"></script></body></html>`,
		string(html))
}
