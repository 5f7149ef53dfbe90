package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	disterrors "github.com/conneroisu/tsdist/internal/errors"
	"github.com/conneroisu/tsdist/internal/logging"
	"golang.org/x/net/html"
)

// schemeRef matches references that carry a URI scheme. Any alphanumeric run
// before the first colon counts, so "c:app.ts" and ":app.ts" are external too.
var schemeRef = regexp.MustCompile(`^[A-Za-z0-9]*:`)

// HTMLRewriter discovers bundle entry points in HTML documents and rewrites
// their script references to the compiled, cache-busted artifacts.
type HTMLRewriter struct {
	SrcDir     string
	DestDir    string
	Extensions []string
	Logger     logging.Logger
}

// IsHTML reports whether path names an HTML document.
func IsHTML(path string) bool {
	return strings.HasSuffix(path, ".html")
}

// Rewrite transforms the HTML file at src and writes it to dest when the
// result differs from what dest already holds. It returns 1 when dest was
// written together with the entry points the document references. A
// document with an invalid reference is not written.
func (r *HTMLRewriter) Rewrite(ctx context.Context, src, dest string) (int, []string, error) {
	content, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil, nil
		}
		return 0, nil, disterrors.WrapIO(err, "", "failed to read HTML", src)
	}

	out, entries, err := r.Transform(content, src, dest)
	if err != nil {
		return 0, nil, err
	}

	if old, err := os.ReadFile(dest); err == nil && bytes.Equal(old, out) {
		return 0, entries, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, entries, disterrors.WrapIO(err, "", "failed to create output directory", dest)
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return 0, entries, disterrors.WrapIO(err, "", "failed to write HTML", dest)
	}
	if r.Logger != nil {
		r.Logger.Info(ctx, fmt.Sprintf("%s -> %s", src, dest))
	}
	return 1, entries, nil
}

// Transform rewrites every compilable script reference in content. src and
// dest locate the document; the returned entry points are source-root
// relative, slash separated and in document order.
func (r *HTMLRewriter) Transform(content []byte, src, dest string) ([]byte, []string, error) {
	var (
		out     bytes.Buffer
		entries []string
	)
	out.Grow(len(content))

	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, nil, disterrors.WrapIO(err, "", "failed to tokenize HTML", src)
			}
			break
		}

		// TagName lowercases the tokenizer buffer in place.
		raw := slices.Clone(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		name, hasAttr := z.TagName()
		if string(name) != "script" || !hasAttr {
			out.Write(raw)
			continue
		}

		var (
			ref    string
			hasSrc bool
		)
		for more := true; more; {
			var key, val []byte
			key, val, more = z.TagAttr()
			if string(key) == "src" {
				ref, hasSrc = string(val), true
				break
			}
		}
		if !hasSrc || !r.compilable(ref) {
			out.Write(raw)
			continue
		}

		entry, err := r.resolve(ref, src)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)

		compiled := compiledPath(ref)
		out.Write(replaceSrc(raw, compiled+CacheBust(r.artifactPath(compiled, dest))))
	}

	return out.Bytes(), entries, nil
}

func (r *HTMLRewriter) compilable(ref string) bool {
	return slices.Contains(r.Extensions, strings.ToLower(path.Ext(ref)))
}

// resolve maps a script reference found in the document at htmlPath to an
// entry point relative to the source root.
func (r *HTMLRewriter) resolve(ref, htmlPath string) (string, error) {
	if schemeRef.MatchString(ref) || strings.HasPrefix(ref, "//") {
		return "", disterrors.NewConfigurationError(disterrors.CodeExternalReference,
			fmt.Sprintf("External path to %q can't be compiled; please replace it with a relative path", ref)).
			WithFile(htmlPath)
	}

	var rel string
	if strings.HasPrefix(ref, "/") {
		rel = path.Clean(strings.TrimLeft(ref, "/"))
	} else {
		abs := filepath.Join(filepath.Dir(htmlPath), filepath.FromSlash(ref))
		var err error
		rel, err = filepath.Rel(r.SrcDir, abs)
		if err != nil {
			return "", disterrors.NewConfigurationError(disterrors.CodeEscapingReference,
				fmt.Sprintf("cannot resolve %q against %s", ref, r.SrcDir)).WithFile(htmlPath)
		}
		rel = filepath.ToSlash(rel)
	}

	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", disterrors.NewConfigurationError(disterrors.CodeEscapingReference,
			fmt.Sprintf("script %q points outside of %s", ref, r.SrcDir)).WithFile(htmlPath)
	}
	return rel, nil
}

// artifactPath locates the compiled artifact referenced as compiled from the
// document that is written to dest.
func (r *HTMLRewriter) artifactPath(compiled, dest string) string {
	if strings.HasPrefix(compiled, "/") {
		return filepath.Join(r.DestDir, filepath.FromSlash(strings.TrimLeft(compiled, "/")))
	}
	return filepath.Join(filepath.Dir(dest), filepath.FromSlash(compiled))
}

// compiledPath replaces the module extension of ref with ".js".
func compiledPath(ref string) string {
	return strings.TrimSuffix(ref, path.Ext(ref)) + ".js"
}

// replaceSrc swaps the src attribute value inside a raw start tag, keeping the
// rest of the tag untouched.
func replaceSrc(raw []byte, value string) []byte {
	start, end, ok := srcValue(raw)
	if !ok {
		return []byte(`<script src="` + html.EscapeString(value) + `">`)
	}

	var replacement string
	if raw[start] == '\'' {
		replacement = `'` + strings.ReplaceAll(value, `'`, "&#39;") + `'`
	} else {
		replacement = `"` + strings.ReplaceAll(value, `"`, "&quot;") + `"`
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + len(value))
	buf.Write(raw[:start])
	buf.WriteString(replacement)
	buf.Write(raw[end:])
	return buf.Bytes()
}

// srcValue locates the value of the first src attribute of a raw start tag,
// quotes included. Other attribute values are skipped whole, so text inside
// them never matches.
func srcValue(raw []byte) (start, end int, ok bool) {
	i := 1
	for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '>' && raw[i] != '/' {
		i++
	}

	for i < len(raw) {
		for i < len(raw) && (isTagSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			return 0, 0, false
		}

		nameStart := i
		for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' {
			i++
		}
		name := raw[nameStart:i]

		for i < len(raw) && isTagSpace(raw[i]) {
			i++
		}
		if i >= len(raw) || raw[i] != '=' {
			continue
		}
		i++
		for i < len(raw) && isTagSpace(raw[i]) {
			i++
		}
		if i >= len(raw) {
			return 0, 0, false
		}

		valueStart := i
		switch q := raw[i]; q {
		case '"', '\'':
			j := bytes.IndexByte(raw[i+1:], q)
			if j < 0 {
				return 0, 0, false
			}
			i += j + 2
		default:
			for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '>' {
				i++
			}
		}
		if bytes.EqualFold(name, []byte("src")) {
			return valueStart, i, true
		}
	}
	return 0, 0, false
}

func isTagSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
