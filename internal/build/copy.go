package build

import (
	"io"
	"os"
	"path/filepath"

	disterrors "github.com/conneroisu/tsdist/internal/errors"
)

// copyFile copies src to dest, creating parent directories and carrying over
// the permission bits of src.
func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return disterrors.WrapIO(err, "", "failed to stat source", src)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return disterrors.WrapIO(err, "", "failed to create output directory", dest)
	}

	in, err := os.Open(src)
	if err != nil {
		return disterrors.WrapIO(err, "", "failed to open source", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return disterrors.WrapIO(err, "", "failed to create destination", dest)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return disterrors.WrapIO(err, "", "failed to copy file", dest)
	}
	if err := out.Close(); err != nil {
		return disterrors.WrapIO(err, "", "failed to write destination", dest)
	}
	// OpenFile only applies the mode on creation.
	return os.Chmod(dest, info.Mode().Perm())
}
