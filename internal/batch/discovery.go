package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/MeKo-Tech/foodlens/internal/preprocess"
)

// Discover expands args into image paths. Directories contribute the
// supported images they contain, walking subdirectories when recursive is
// set. Files named explicitly must have a supported extension.
// Include and exclude patterns match the base name.
func Discover(args []string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if info.IsDir() {
			found, err := discoverInDirectory(arg, recursive, include, exclude)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		if !preprocess.IsSupportedImage(arg) {
			return nil, fmt.Errorf("unsupported image format: %s", arg)
		}
		if shouldIncludeFile(arg, include, exclude) {
			files = append(files, arg)
		}
	}
	return files, nil
}

func discoverInDirectory(dir string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if preprocess.IsSupportedImage(path) && shouldIncludeFile(path, include, exclude) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// shouldIncludeFile applies exclude patterns first; with no include
// patterns everything else is included.
func shouldIncludeFile(path string, include, exclude []string) bool {
	if matchesAnyPattern(path, exclude) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchesAnyPattern(path, include)
}

func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
