// Package fs selects dataset files by doublestar pattern.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker resolves include and exclude patterns relative to a root directory.
type Walker struct {
	includes []string
	excludes []string
}

// NewWalker creates a Walker. Absolute include patterns are matched against
// the filesystem root.
func NewWalker(includes, excludes []string) *Walker {
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// FileInfo describes one selected file.
type FileInfo struct {
	Path string
	Size int64
}

// Walk returns every regular file matched by an include pattern and no
// exclude pattern, sorted by path, without duplicates.
func (w *Walker) Walk(root string) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []FileInfo

	for _, pattern := range w.includes {
		base, pat := root, pattern
		if filepath.IsAbs(pattern) {
			base, pat = doublestar.SplitPattern(filepath.ToSlash(pattern))
		}
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid dataset pattern %q", pattern)
		}

		matches, err := doublestar.Glob(os.DirFS(base), pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
		}

		for _, m := range matches {
			path := filepath.Join(base, filepath.FromSlash(m))
			if seen[path] || w.shouldExclude(root, path) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			seen[path] = true
			files = append(files, FileInfo{Path: path, Size: info.Size()})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldExclude(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, rel)
		if err == nil && matched {
			return true
		}
	}
	return false
}
