package build

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// IsFresh reports whether dest is up to date with respect to src, in which
// case rebuilding dest can be skipped.
//
// dest is fresh when its status-change time is not older than src's. A
// missing src is also reported fresh since there is nothing to rebuild from.
// Any other probe failure reports not fresh so the caller rebuilds.
func IsFresh(src, dest string) bool {
	srcChanged, err := changeTime(src)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	destChanged, err := changeTime(dest)
	if err != nil {
		return false
	}
	return !destChanged.Before(srcChanged)
}

// statModTime is the fallback for platforms without a status-change time.
func statModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
