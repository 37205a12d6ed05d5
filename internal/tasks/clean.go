package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Clean removes every path matching patterns below dir and, when pycache is
// set, every __pycache__ directory in the tree. Patterns are filepath globs.
// Missing paths are not an error. The removed paths are returned sorted.
func Clean(dir string, patterns []string, pycache bool) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	var removed []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return removed, fmt.Errorf("clean pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if err := os.RemoveAll(match); err != nil {
				return removed, fmt.Errorf("remove %s: %w", match, err)
			}
			removed = append(removed, match)
		}
	}

	if pycache {
		var caches []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() && d.Name() == "__pycache__" {
				caches = append(caches, path)
				return filepath.SkipDir
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("scan for __pycache__: %w", err)
		}
		for _, path := range caches {
			if err := os.RemoveAll(path); err != nil {
				return removed, fmt.Errorf("remove %s: %w", path, err)
			}
			removed = append(removed, path)
		}
	}

	sort.Strings(removed)
	return removed, nil
}
