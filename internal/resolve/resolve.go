// Package resolve turns relative import specifiers into concrete files and
// resolves every file of a source tree in parallel.
package resolve

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/repoorbit/internal/lang"
	"github.com/phobologic/repoorbit/internal/model"
	"github.com/phobologic/repoorbit/internal/parse"
)

// Index is the set of known files, by absolute path.
type Index map[string]struct{}

// NewIndex builds an Index from walked files.
func NewIndex(files []model.SourceFile) Index {
	ix := make(Index, len(files))
	for _, f := range files {
		ix[f.Path] = struct{}{}
	}
	return ix
}

// Candidates lists the paths probed for spec imported from importer, in
// order: the exact path, the path with each source extension appended, then
// an index file inside the path for each extension.
func Candidates(importer, spec string) []string {
	base := filepath.Join(filepath.Dir(importer), filepath.FromSlash(spec))
	out := make([]string, 0, 1+2*len(lang.SourceExtensions))
	out = append(out, base)
	for _, ext := range lang.SourceExtensions {
		out = append(out, base+ext)
	}
	for _, ext := range lang.SourceExtensions {
		out = append(out, filepath.Join(base, "index"+ext))
	}
	return out
}

// Specifier resolves spec against the index. Non-relative specifiers and
// specifiers with no matching file report false.
func (ix Index) Specifier(importer, spec string) (string, bool) {
	if !parse.IsRelative(spec) {
		return "", false
	}
	for _, c := range Candidates(importer, spec) {
		if _, ok := ix[c]; ok {
			return c, true
		}
	}
	return "", false
}

// File returns the set of files f imports. structured may be nil. An
// unreadable file yields no imports and is reported as degraded.
func File(f model.SourceFile, ix Index, structured parse.Extractor) (imports map[string]struct{}, degraded bool) {
	imports = make(map[string]struct{})
	source, err := os.ReadFile(f.Path)
	if err != nil {
		return imports, true
	}

	specs, degraded := parse.Specifiers(source, structured)
	for spec := range specs {
		target, ok := ix.Specifier(f.Path, spec)
		if !ok || target == f.Path {
			continue
		}
		imports[target] = struct{}{}
	}
	return imports, degraded
}

// Stats summarises a resolution run.
type Stats struct {
	Files    int
	Edges    int
	Degraded []string // Rel paths whose structured parse failed
}

// All resolves every file under root using workers goroutines. Each worker
// owns its tree-sitter parsers. Only context cancellation aborts the run.
func All(ctx context.Context, root string, files []model.SourceFile, workers int) (*model.Analysis, Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(files) {
		workers = len(files)
	}

	ix := NewIndex(files)

	type result struct {
		imports  map[string]struct{}
		degraded bool
	}
	results := make([]result, len(files))

	work := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	for range workers {
		g.Go(func() error {
			// Each goroutine gets its own parser
			extractors := make(map[string]parse.Extractor)
			for idx := range work {
				f := files[idx]
				var structured parse.Extractor
				if name := lang.ForExtension(f.Ext); name != "" && !lang.IsJSX(f.Ext) {
					ex, ok := extractors[name]
					if !ok {
						if ts, err := parse.NewTreeSitter(lang.Languages[name]); err == nil {
							ex = ts
						}
						extractors[name] = ex
					}
					structured = ex
				}
				imports, degraded := File(f, ix, structured)
				results[idx] = result{imports: imports, degraded: degraded}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for i := range files {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	a := &model.Analysis{
		Root:    root,
		Files:   files,
		Imports: make(map[string]map[string]struct{}, len(files)),
	}
	stats := Stats{Files: len(files)}
	for i, r := range results {
		a.Imports[files[i].Path] = r.imports
		stats.Edges += len(r.imports)
		if r.degraded {
			stats.Degraded = append(stats.Degraded, files[i].Rel)
		}
	}
	return a, stats, nil
}
