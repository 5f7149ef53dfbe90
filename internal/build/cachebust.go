package build

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// CacheBust returns a short query-string suffix derived from the contents of
// path, in the form "?" followed by eight lowercase hex digits. When path
// cannot be read the suffix is empty so that the reference stays usable.
func CacheBust(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return "?" + fmt.Sprintf("%016x", h.Sum64())[:8]
}
