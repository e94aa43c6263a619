// Package discover finds candidate source files under a source root.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/repoorbit/internal/lang"
	"github.com/phobologic/repoorbit/internal/model"
)

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
	"build":        {},
	"out":          {},
	"coverage":     {},
	"vendor":       {},
	"__tests__":    {},
	"__mocks__":    {},
	"__fixtures__": {},
	"fixtures":     {},
	"test":         {},
	"tests":        {},
}

// SkipDir reports whether a directory with this base name is never walked.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, skip := skipDirs[name]
	return skip
}

// IsSourceName reports whether a file with this base name is collected.
// Declaration files are not.
func IsSourceName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".d.ts") {
		return false
	}
	return lang.IsSource(filepath.Ext(name))
}

// Files discovers source files under root. Entries that cannot be read are
// skipped rather than failing the walk. The result is sorted by Rel, but
// callers should not depend on it.
func Files(root string) ([]model.SourceFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	gi := loadGitignore(root)

	var results []model.SourceFile

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if !IsSourceName(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		results = append(results, model.SourceFile{
			Path: path,
			Rel:  filepath.ToSlash(rel),
			Ext:  filepath.Ext(name),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Rel < results[j].Rel
	})

	return results, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
