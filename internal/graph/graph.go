// Package graph reduces a resolved import analysis into the directory and
// file views of the graph document.
package graph

import (
	"path"
	"sort"
	"strings"

	"github.com/phobologic/repoorbit/internal/model"
)

// DefaultMaxFiles bounds the file view when no cap is configured.
const DefaultMaxFiles = 150

// Options controls document assembly.
type Options struct {
	Repo       string
	Mode       model.Mode
	PathPrefix string
	MaxFiles   int
	// RootLabel labels the "." directory node. Defaults to PathPrefix.
	RootLabel string
}

// Reduce builds the complete graph document for an analysis. The result
// shares no state with a and may be handed to any number of readers.
func Reduce(a *model.Analysis, opts Options) *model.Document {
	if opts.Mode == "" {
		opts.Mode = model.ModeDirectory
	}
	if opts.RootLabel == "" {
		opts.RootLabel = opts.PathPrefix
	}
	if opts.RootLabel == "" {
		opts.RootLabel = "."
	}

	dirNodes, dirLinks, fileToDir := DirectoryView(a, opts.RootLabel)
	fileNodes, fileLinks := FileView(a, opts.MaxFiles)

	categories := make(map[model.Category]model.CategoryInfo, len(model.Categories))
	for k, v := range model.Categories {
		categories[k] = v
	}

	doc := &model.Document{
		Meta: model.Meta{
			Repo:       opts.Repo,
			Mode:       opts.Mode,
			PathPrefix: opts.PathPrefix,
		},
		Categories:   categories,
		Nodes:        dirNodes,
		Links:        dirLinks,
		FileNodes:    fileNodes,
		FileLinks:    fileLinks,
		FileToDirMap: fileToDir,
	}
	if opts.Mode == model.ModeFile {
		doc.Meta.NodeCount, doc.Meta.LinkCount = len(fileNodes), len(fileLinks)
	} else {
		doc.Meta.NodeCount, doc.Meta.LinkCount = len(dirNodes), len(dirLinks)
	}
	return doc
}

// DirKey returns the directory key of a slash-separated relative file path:
// the first two segments of its parent directory, or "." at the root.
func DirKey(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return "."
	}
	parts := strings.Split(dir, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// DirectoryView collapses files into directory nodes. It also returns the
// file → directory key lookup table.
func DirectoryView(a *model.Analysis, rootLabel string) ([]model.Node, []model.Link, map[string]string) {
	fileToDir := make(map[string]string, len(a.Files))
	absToDir := make(map[string]string, len(a.Files))
	counts := make(map[string]int)

	for _, f := range a.Files {
		key := DirKey(f.Rel)
		fileToDir[f.Rel] = key
		absToDir[f.Path] = key
		counts[key]++
	}

	nodes := make([]model.Node, 0, len(counts))
	for _, key := range sortedKeys(counts) {
		label := path.Base(key)
		if key == "." {
			label = rootLabel
		}
		nodes = append(nodes, model.Node{
			ID:         key,
			Label:      label,
			Category:   Categorize(key),
			FileCount:  counts[key],
			Resolution: model.ModeDirectory,
		})
	}

	pairs := newPairSet()
	for _, e := range a.Edges() {
		src, ok1 := absToDir[e.From]
		tgt, ok2 := absToDir[e.To]
		if !ok1 || !ok2 {
			continue
		}
		pairs.add(src, tgt)
	}

	return nodes, pairs.links(), fileToDir
}

// Connectivity returns each file's out-degree plus in-degree, keyed by
// relative path.
func Connectivity(a *model.Analysis) map[string]int {
	rel := relIndex(a)
	conn := make(map[string]int, len(a.Files))
	for _, f := range a.Files {
		conn[f.Rel] = 0
	}
	for _, e := range a.Edges() {
		from, ok1 := rel[e.From]
		to, ok2 := rel[e.To]
		if !ok1 || !ok2 {
			continue
		}
		conn[from]++
		conn[to]++
	}
	return conn
}

// SelectFiles returns the ids of the top maxFiles files by connectivity,
// ties broken by id. If maxFiles is <= 0 the default cap applies.
func SelectFiles(conn map[string]int, maxFiles int) []string {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	ids := make([]string, 0, len(conn))
	for id := range conn {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if conn[ids[i]] != conn[ids[j]] {
			return conn[ids[i]] > conn[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > maxFiles {
		ids = ids[:maxFiles]
	}
	return ids
}

// FileView keeps the most connected files. Edges touching a dropped file are
// discarded, not rerouted.
func FileView(a *model.Analysis, maxFiles int) ([]model.Node, []model.Link) {
	selected := SelectFiles(Connectivity(a), maxFiles)
	kept := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		kept[id] = struct{}{}
	}

	nodes := make([]model.Node, 0, len(selected))
	for _, id := range selected {
		nodes = append(nodes, model.Node{
			ID:         id,
			Label:      path.Base(id),
			Category:   Categorize(id),
			FileCount:  1,
			Resolution: model.ModeFile,
		})
	}

	rel := relIndex(a)
	pairs := newPairSet()
	for _, e := range a.Edges() {
		from, to := rel[e.From], rel[e.To]
		_, srcOK := kept[from]
		_, tgtOK := kept[to]
		if srcOK && tgtOK {
			pairs.add(from, to)
		}
	}

	return nodes, pairs.links()
}

func relIndex(a *model.Analysis) map[string]string {
	rel := make(map[string]string, len(a.Files))
	for _, f := range a.Files {
		rel[f.Path] = f.Rel
	}
	return rel
}

// pairSet collects unordered pairs, dropping self-pairs.
type pairSet map[[2]string]struct{}

func newPairSet() pairSet { return make(pairSet) }

func (p pairSet) add(a, b string) {
	if a == b {
		return
	}
	if b < a {
		a, b = b, a
	}
	p[[2]string{a, b}] = struct{}{}
}

func (p pairSet) links() []model.Link {
	links := make([]model.Link, 0, len(p))
	for k := range p {
		links = append(links, model.Link{Source: k[0], Target: k[1]})
	}
	// Sort for deterministic output
	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].Target < links[j].Target
	})
	return links
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
