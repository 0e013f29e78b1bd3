package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when the root does not exist or is not a directory.
var ErrNotFound = errors.New("watched root not found")

// Filter decides which parts of the tree are visited. Paths are relative to
// the root, slash separated with a leading slash.
type Filter interface {
	ShouldDescend(rel string) bool
	ShouldInclude(rel string) bool
}

// Progress receives walk events. Calls come from the walking goroutine.
type Progress interface {
	SetDirectory(dir string)
	Increment()
}

type Result struct {
	// Latest is the newest modification time in epoch seconds, 0 if no file qualified.
	Latest int64
	// Newest is the relative path of the file that produced Latest.
	Newest string
	Files  int
	Pruned int
	Errors []error
}

// Scan walks root top-down and reduces the modification times of all included
// files to their maximum. Excluded directories are pruned: their children are
// never listed. Symlinked directories are not followed.
func Scan(ctx context.Context, root string, filter Filter) (*Result, error) {
	return ScanWithProgress(ctx, root, filter, nil)
}

// ScanWithProgress is Scan with a progress observer; bar may be nil.
func ScanWithProgress(ctx context.Context, root string, filter Filter, bar Progress) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, root)
	}

	result := &Result{
		Errors: make([]error, 0),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			// If error is on the root path, return it (don't continue walking)
			if path == root {
				return err
			}
			// Skip unreadable entries and continue walking
			result.Errors = append(result.Errors, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			return nil
		}
		relPath = "/" + filepath.ToSlash(relPath)

		if d.IsDir() {
			if !filter.ShouldDescend(relPath) {
				result.Pruned++
				return filepath.SkipDir
			}
			if bar != nil {
				bar.SetDirectory(relPath)
			}
			return nil
		}

		if !filter.ShouldInclude(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, err)
			return nil
		}

		// Links count with their target's mtime. Dangling links and links to
		// directories are not files.
		if d.Type()&fs.ModeSymlink != 0 {
			info, err = os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		}

		result.Files++
		if bar != nil {
			bar.Increment()
		}
		if mtime := info.ModTime().Unix(); mtime > result.Latest {
			result.Latest = mtime
			result.Newest = relPath
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}
