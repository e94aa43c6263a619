package graph

import (
	"path"
	"testing"

	"github.com/phobologic/repoorbit/internal/model"
)

const testRoot = "/repo/src"

// newAnalysis builds an analysis from relative paths and rel→rel edges.
func newAnalysis(rels []string, edges [][2]string) *model.Analysis {
	a := &model.Analysis{
		Root:    testRoot,
		Imports: make(map[string]map[string]struct{}),
	}
	for _, r := range rels {
		abs := path.Join(testRoot, r)
		a.Files = append(a.Files, model.SourceFile{Path: abs, Rel: r, Ext: path.Ext(r)})
		a.Imports[abs] = make(map[string]struct{})
	}
	for _, e := range edges {
		a.Imports[path.Join(testRoot, e[0])][path.Join(testRoot, e[1])] = struct{}{}
	}
	return a
}

func TestDirKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want string
	}{
		{"index.ts", "."},
		{"utils/x.ts", "utils"},
		{"components/ui/Button.tsx", "components/ui"},
		{"a/b/c/d/e.js", "a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			if got := DirKey(tt.rel); got != tt.want {
				t.Errorf("DirKey(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want model.Category
	}{
		{"server/db.ts", model.CategoryServer},
		{"client/main.ts", model.CategoryClient},
		{"components/ui", model.CategoryClient},
		{"shared/types.ts", model.CategoryShared},
		{"lib/fmt.js", model.CategoryLib},
		{"scripts/release.js", model.CategoryBuild},
		{"api/users.ts", model.CategoryAPI},
		{"pages/index.tsx", model.CategoryPages},
		{"exporter/gltf.ts", model.CategoryExport},
		{"misc/thing.ts", model.CategoryOther},
		{".", model.CategoryOther},
		// First matching segment wins.
		{"server/api/x.ts", model.CategoryServer},
		{"api/server/x.ts", model.CategoryAPI},
		// File stems count as segments.
		{"api.ts", model.CategoryAPI},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			if got := Categorize(tt.id); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestThreeFileProject(t *testing.T) {
	t.Parallel()

	a := newAnalysis(
		[]string{"a.js", "b.js", "c.js"},
		[][2]string{{"a.js", "b.js"}, {"a.js", "c.js"}},
	)

	doc := Reduce(a, Options{Repo: "o/r", Mode: model.ModeFile, PathPrefix: "src", MaxFiles: 10})

	if len(doc.FileNodes) != 3 {
		t.Errorf("file nodes = %d, want 3", len(doc.FileNodes))
	}
	if len(doc.FileLinks) != 2 {
		t.Errorf("file links = %d, want 2", len(doc.FileLinks))
	}
	if len(doc.Nodes) != 1 || doc.Nodes[0].ID != "." {
		t.Errorf("dir nodes = %+v, want single root node", doc.Nodes)
	}
	if doc.Nodes[0].FileCount != 3 {
		t.Errorf("root fileCount = %d, want 3", doc.Nodes[0].FileCount)
	}
	if doc.Nodes[0].Label != "src" {
		t.Errorf("root label = %q, want src", doc.Nodes[0].Label)
	}
	if len(doc.Links) != 0 {
		t.Errorf("dir links = %d, want 0", len(doc.Links))
	}
	if doc.Meta.NodeCount != 3 || doc.Meta.LinkCount != 2 {
		t.Errorf("meta counts = %d/%d, want 3/2", doc.Meta.NodeCount, doc.Meta.LinkCount)
	}
	if doc.FileNodes[0].ID != "a.js" {
		t.Errorf("most connected file = %q, want a.js", doc.FileNodes[0].ID)
	}
	if len(doc.Categories) != len(model.Categories) {
		t.Errorf("categories = %d, want %d", len(doc.Categories), len(model.Categories))
	}
}

func TestDirectoryViewCollapsesLinks(t *testing.T) {
	t.Parallel()

	a := newAnalysis(
		[]string{
			"app/pages/home.tsx",
			"app/pages/about.tsx",
			"app/lib/deep/fmt.ts",
			"server/index.ts",
			"main.ts",
		},
		[][2]string{
			{"app/pages/home.tsx", "app/lib/deep/fmt.ts"},
			{"app/pages/about.tsx", "app/lib/deep/fmt.ts"}, // same dir pair
			{"app/lib/deep/fmt.ts", "app/pages/home.tsx"},  // reverse direction
			{"app/pages/home.tsx", "app/pages/about.tsx"},  // same directory
			{"main.ts", "server/index.ts"},
		},
	)

	nodes, links, fileToDir := DirectoryView(a, "root")

	wantNodes := map[string]int{"app/pages": 2, "app/lib": 1, "server": 1, ".": 1}
	if len(nodes) != len(wantNodes) {
		t.Fatalf("nodes = %+v", nodes)
	}
	for _, n := range nodes {
		if wantNodes[n.ID] != n.FileCount {
			t.Errorf("%s fileCount = %d, want %d", n.ID, n.FileCount, wantNodes[n.ID])
		}
		if n.Resolution != model.ModeDirectory {
			t.Errorf("%s resolution = %q", n.ID, n.Resolution)
		}
	}

	if len(links) != 2 {
		t.Fatalf("links = %+v, want 2", links)
	}
	if links[0] != (model.Link{Source: ".", Target: "server"}) {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1] != (model.Link{Source: "app/lib", Target: "app/pages"}) {
		t.Errorf("links[1] = %+v", links[1])
	}

	if fileToDir["app/lib/deep/fmt.ts"] != "app/lib" {
		t.Errorf("fileToDir = %v", fileToDir)
	}
	if fileToDir["main.ts"] != "." {
		t.Errorf("fileToDir[main.ts] = %q", fileToDir["main.ts"])
	}
}

func TestFileViewCapDropsEdges(t *testing.T) {
	t.Parallel()

	// hub is imported by everyone; leaf files import only hub.
	// x imports y, both otherwise isolated: each has connectivity 1.
	a := newAnalysis(
		[]string{"hub.ts", "l1.ts", "l2.ts", "l3.ts", "x.ts", "y.ts"},
		[][2]string{
			{"l1.ts", "hub.ts"},
			{"l2.ts", "hub.ts"},
			{"l3.ts", "hub.ts"},
			{"hub.ts", "l1.ts"}, // cycle adds to both degrees
			{"x.ts", "y.ts"},
		},
	)

	nodes, links := FileView(a, 3)
	if len(nodes) != 3 {
		t.Fatalf("nodes = %+v, want 3", nodes)
	}
	ids := []string{nodes[0].ID, nodes[1].ID, nodes[2].ID}
	// hub=4, l1=2, then ties at 1 broken by id: l2 < l3 < x < y
	want := []string{"hub.ts", "l1.ts", "l2.ts"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("selected = %v, want %v", ids, want)
		}
	}
	for _, l := range links {
		if l.Source == "l3.ts" || l.Target == "l3.ts" || l.Source == "x.ts" {
			t.Errorf("link to dropped file kept: %+v", l)
		}
	}
	// hub-l1 (deduplicated across both directions) and hub-l2.
	if len(links) != 2 {
		t.Errorf("links = %+v, want 2", links)
	}
}

func TestSelectFilesDefaultCap(t *testing.T) {
	t.Parallel()

	conn := make(map[string]int)
	for i := 0; i < DefaultMaxFiles+20; i++ {
		conn[path.Join("f", string(rune('a'+i%26)), string(rune('a'+i/26))+".ts")] = i
	}
	if got := SelectFiles(conn, 0); len(got) != DefaultMaxFiles {
		t.Errorf("selected %d, want %d", len(got), DefaultMaxFiles)
	}
}

func TestReduceEmpty(t *testing.T) {
	t.Parallel()

	doc := Reduce(&model.Analysis{}, Options{})
	if doc.Meta.Mode != model.ModeDirectory {
		t.Errorf("default mode = %q", doc.Meta.Mode)
	}
	if len(doc.Nodes) != 0 || len(doc.FileNodes) != 0 {
		t.Errorf("expected empty views, got %+v", doc)
	}
	if doc.Nodes == nil || doc.Links == nil || doc.FileNodes == nil || doc.FileLinks == nil {
		t.Error("views must be empty slices so they serialize as []")
	}
}
