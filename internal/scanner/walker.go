// Package scanner enumerates source trees.
//
// Walk produces a lazy sequence of (source, destination) file pairs using an
// explicit stack instead of recursion, so arbitrarily deep trees never grow
// the goroutine stack and a consumer can stop early by breaking out of the
// range loop. Hidden entries (names beginning with ".") are skipped together
// with everything below them.
package scanner

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// FilePair is the unit of work for copy and compile decisions.
type FilePair struct {
	Src  string
	Dest string
}

// Handler processes one file pair and reports how many files it changed.
type Handler func(pair FilePair) (int, error)

type frame struct {
	src  string
	dest string
}

// IsHidden reports whether a file name denotes a hidden entry.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Walk yields every non-hidden regular file below srcRoot together with its
// destination under destRoot. A missing srcRoot yields nothing. Directory
// read failures are yielded as errors with a zero FilePair; the walk goes on
// with the remaining directories unless the consumer stops.
func Walk(srcRoot, destRoot string) iter.Seq2[FilePair, error] {
	return func(yield func(FilePair, error) bool) {
		info, err := os.Stat(srcRoot)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(FilePair{}, err)
			return
		}

		if !info.IsDir() {
			yield(FilePair{Src: srcRoot, Dest: destRoot}, nil)
			return
		}

		stack := []frame{{src: srcRoot, dest: destRoot}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(top.src)
			if err != nil {
				if !yield(FilePair{}, err) {
					return
				}
				continue
			}

			// Files of this directory are yielded before descending; the
			// subdirectories are pushed in reverse so they pop in listing order.
			var dirs []frame
			for _, entry := range entries {
				name := entry.Name()
				if IsHidden(name) {
					continue
				}
				src := filepath.Join(top.src, name)
				dest := filepath.Join(top.dest, name)

				isDir := entry.IsDir()
				if entry.Type()&fs.ModeSymlink != 0 {
					if target, err := os.Stat(src); err == nil {
						isDir = target.IsDir()
					}
				}

				if isDir {
					dirs = append(dirs, frame{src: src, dest: dest})
					continue
				}
				if !yield(FilePair{Src: src, Dest: dest}, nil) {
					return
				}
			}
			for i := len(dirs) - 1; i >= 0; i-- {
				stack = append(stack, dirs[i])
			}
		}
	}
}

// Count drives seq through handler and sums the changed counts. The first
// error, from the walk or from the handler, stops the traversal.
func Count(seq iter.Seq2[FilePair, error], handler Handler) (int, error) {
	total := 0
	for pair, err := range seq {
		if err != nil {
			return total, err
		}
		n, err := handler(pair)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Destination maps a file below srcRoot to its location under destRoot.
func Destination(srcRoot, destRoot, src string) (string, error) {
	rel, err := filepath.Rel(srcRoot, src)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &fs.PathError{Op: "destination", Path: src, Err: fs.ErrInvalid}
	}
	return filepath.Join(destRoot, rel), nil
}
