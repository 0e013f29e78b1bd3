// Package filter decides which entries of a watched tree take part in a scan.
//
// Two independent rule sets apply: excluded subpaths, matched exactly against a
// directory's path relative to the watched root, and excluded file extensions,
// matched case-insensitively. Optional doublestar patterns exclude both
// directories and files by relative path.
package filter

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
)

type Rules struct {
	ExcludedDirectories []string
	ExcludedExtensions  []string
	ExcludedPatterns    []string
}

// PathFilter is built per scan. It is not safe for concurrent use.
type PathFilter struct {
	dirs     map[string]struct{}
	exts     map[string]struct{}
	patterns []string
	fold     cases.Caser
}

func New(rules Rules) *PathFilter {
	f := &PathFilter{
		dirs: make(map[string]struct{}, len(rules.ExcludedDirectories)),
		exts: make(map[string]struct{}, len(rules.ExcludedExtensions)),
		fold: cases.Fold(),
	}

	for _, dir := range rules.ExcludedDirectories {
		if dir = NormalizeSubpath(dir); dir != "" {
			f.dirs[dir] = struct{}{}
		}
	}

	for _, ext := range rules.ExcludedExtensions {
		if ext = f.normalizeExtension(ext); ext != "" {
			f.exts[ext] = struct{}{}
		}
	}

	for _, pattern := range rules.ExcludedPatterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
		if pattern != "" && doublestar.ValidatePattern(pattern) {
			f.patterns = append(f.patterns, pattern)
		}
	}

	return f
}

// NormalizeSubpath turns an authored subpath rule into the form relative
// directory paths are compared in: slash separated, leading slash, no trailing
// slash. The root itself normalizes to "".
func NormalizeSubpath(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return p
}

func (f *PathFilter) normalizeExtension(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	return f.fold.String(ext)
}

// ShouldDescend reports whether the directory at rel (relative to the watched
// root, any separator) may be entered. It is an exact match, not a prefix match:
// "/images" does not exclude "/images-old" or "/theme/images".
func (f *PathFilter) ShouldDescend(rel string) bool {
	rel = NormalizeSubpath(rel)
	if _, excluded := f.dirs[rel]; excluded {
		return false
	}
	return !f.matchesPattern(rel)
}

// ShouldInclude reports whether the file at rel counts towards the latest
// modification time. Files without an extension are only excluded by patterns.
func (f *PathFilter) ShouldInclude(rel string) bool {
	if ext := filepath.Ext(rel); len(ext) > 1 {
		if _, excluded := f.exts[f.fold.String(ext[1:])]; excluded {
			return false
		}
	}
	return !f.matchesPattern(NormalizeSubpath(rel))
}

func (f *PathFilter) matchesPattern(normalized string) bool {
	if len(f.patterns) == 0 || normalized == "" {
		return false
	}
	name := strings.TrimPrefix(normalized, "/")
	for _, pattern := range f.patterns {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
