// Package parse extracts module specifiers from source files. A structured
// tree-sitter strategy is tried first; regex strategies serve as fallback.
package parse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repoorbit/internal/lang"
)

// ErrParseDegraded is returned by the structured strategy when it cannot
// produce a trustworthy result. Callers fall back to the regex strategies.
var ErrParseDegraded = errors.New("structured parse degraded")

// Set is a set of specifiers.
type Set map[string]struct{}

// Extractor pulls relative module specifiers out of source text.
type Extractor interface {
	Name() string
	Extract(source []byte) (Set, error)
}

// IsRelative reports whether spec names a file relative to the importer.
// Bare package names and absolute URLs never resolve to project files.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// Pattern is a regex strategy. The first submatch is the specifier.
type Pattern struct {
	name string
	re   *regexp.Regexp
}

// Name returns the strategy name.
func (p *Pattern) Name() string { return p.name }

// Extract returns every relative specifier matched by the pattern.
func (p *Pattern) Extract(source []byte) (Set, error) {
	out := make(Set)
	for _, m := range p.re.FindAllSubmatch(source, -1) {
		spec := string(m[1])
		if IsRelative(spec) {
			out[spec] = struct{}{}
		}
	}
	return out, nil
}

var (
	// FromClause matches `... from './x'`.
	FromClause = &Pattern{name: "from", re: regexp.MustCompile(`\bfrom\s+['"](\.{1,2}/[^'"\n]+)['"]`)}
	// BareImport matches side-effect imports: `import './x'`.
	BareImport = &Pattern{name: "import", re: regexp.MustCompile(`\bimport\s+['"](\.{1,2}/[^'"\n]+)['"]`)}
	// RequireCall matches call-style loading: `require('./x')`.
	RequireCall = &Pattern{name: "require", re: regexp.MustCompile(`\brequire\s*\(\s*['"](\.{1,2}/[^'"\n]+)['"]\s*\)`)}
)

// Fallback is the ordered regex chain used when structured parsing is
// unavailable. Results are merged, never short-circuited.
var Fallback = []Extractor{FromClause, BareImport, RequireCall}

// TreeSitter is the structured strategy. It holds a parser and must not be
// shared across goroutines.
type TreeSitter struct {
	lang   *lang.Language
	parser *sitter.Parser
	query  *sitter.Query
}

// NewTreeSitter prepares a structured extractor for l.
func NewTreeSitter(l *lang.Language) (*TreeSitter, error) {
	q, err := l.GetImportQuery()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name, err)
	}
	return &TreeSitter{lang: l, parser: l.NewParser(), query: q}, nil
}

// Name returns the strategy name.
func (ts *TreeSitter) Name() string { return "tree-sitter/" + ts.lang.Name }

// Extract returns the relative static, re-export and dynamic import specifiers.
// A tree containing syntax errors is reported as ErrParseDegraded.
func (ts *TreeSitter) Extract(source []byte) (Set, error) {
	out := make(Set)
	if len(source) == 0 {
		return out, nil
	}

	tree, err := ts.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseDegraded, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: syntax error in tree", ErrParseDegraded)
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(ts.query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		for _, c := range match.Captures {
			if ts.query.CaptureNameForId(c.Index) != "source" {
				continue
			}
			spec := unquote(c.Node.Content(source))
			if IsRelative(spec) {
				out[spec] = struct{}{}
			}
		}
	}
	return out, nil
}

func unquote(s string) string {
	return strings.Trim(s, "'\"`")
}

// Specifiers returns the union of relative specifiers found in source.
// When structured is non-nil its result is merged with the call-style scan;
// if it is nil or degrades, the Fallback chain is used. degraded reports
// whether a structured attempt failed.
func Specifiers(source []byte, structured Extractor) (specs Set, degraded bool) {
	specs = make(Set)
	if structured != nil {
		got, err := structured.Extract(source)
		if err == nil {
			merge(specs, got)
			calls, _ := RequireCall.Extract(source)
			merge(specs, calls)
			return specs, false
		}
		degraded = true
	}
	for _, ex := range Fallback {
		got, err := ex.Extract(source)
		if err != nil {
			continue
		}
		merge(specs, got)
	}
	return specs, degraded
}

func merge(dst, src Set) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
