// Package lang provides the source-extension registry and the tree-sitter
// languages used for structured import extraction.
package lang

import (
	"embed"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var queryFS embed.FS

// SourceExtensions lists the extensions the walker collects, in the order the
// resolver probes them.
var SourceExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"}

var sourceExtSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SourceExtensions))
	for _, ext := range SourceExtensions {
		m[ext] = struct{}{}
	}
	return m
}()

// IsSource reports whether ext is a collected source extension.
func IsSource(ext string) bool {
	_, ok := sourceExtSet[ext]
	return ok
}

// IsJSX reports whether files with ext may contain JSX. The structured
// import parser is not used for them.
func IsJSX(ext string) bool {
	return ext == ".jsx" || ext == ".tsx"
}

// Language holds tree-sitter configuration for a structured-parse language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
	queryOnce  sync.Once
	query      *sitter.Query
	queryErr   error
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// GetImportQuery returns the compiled import query (safe to share across goroutines).
func (l *Language) GetImportQuery() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", l.Name))
		if err != nil {
			l.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			l.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the structured-parse language for a file extension,
// or "" if files with that extension go straight to the regex fallback.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}
