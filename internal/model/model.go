// Package model defines core data structures for repoorbit.
package model

// Mode selects which graph resolution a document leads with.
type Mode string

const (
	ModeDirectory Mode = "directory"
	ModeFile      Mode = "file"
)

// Category is the closed set of node classifications shown in the legend.
type Category string

const (
	CategoryServer Category = "server"
	CategoryClient Category = "client"
	CategoryShared Category = "shared"
	CategoryLib    Category = "lib"
	CategoryBuild  Category = "build"
	CategoryAPI    Category = "api"
	CategoryPages  Category = "pages"
	CategoryExport Category = "export"
	CategoryOther  Category = "other"
)

// CategoryInfo is the display metadata for a category.
type CategoryInfo struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// Categories is the fixed category table emitted with every document.
var Categories = map[Category]CategoryInfo{
	CategoryServer: {Color: "#e06c75", Label: "Server"},
	CategoryClient: {Color: "#61afef", Label: "Client"},
	CategoryShared: {Color: "#c678dd", Label: "Shared"},
	CategoryLib:    {Color: "#98c379", Label: "Library"},
	CategoryBuild:  {Color: "#d19a66", Label: "Build"},
	CategoryAPI:    {Color: "#56b6c2", Label: "API"},
	CategoryPages:  {Color: "#e5c07b", Label: "Pages"},
	CategoryExport: {Color: "#be5046", Label: "Export"},
	CategoryOther:  {Color: "#abb2bf", Label: "Other"},
}

// SourceFile is a candidate source file found under the source root.
type SourceFile struct {
	Path string // Absolute
	Rel  string // Slash-separated, relative to the source root
	Ext  string
}

// ImportEdge is a resolved import: From imports To. Both are absolute paths.
type ImportEdge struct {
	From string
	To   string
}

// Analysis is the resolved import graph of one source root, before reduction.
type Analysis struct {
	Root    string
	Files   []SourceFile
	Imports map[string]map[string]struct{} // from → set of to
}

// Edges returns every import edge in the analysis.
func (a *Analysis) Edges() []ImportEdge {
	var edges []ImportEdge
	for from, tos := range a.Imports {
		for to := range tos {
			edges = append(edges, ImportEdge{From: from, To: to})
		}
	}
	return edges
}

// Node is a vertex in either graph view. Resolution records which view it
// belongs to; it is not serialized.
type Node struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Category   Category `json:"category"`
	FileCount  int      `json:"fileCount"`
	Resolution Mode     `json:"-"`
}

// Link is an unordered pair of node ids.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Meta describes how a document was produced.
type Meta struct {
	Repo       string `json:"repo"`
	Mode       Mode   `json:"mode"`
	PathPrefix string `json:"pathPrefix"`
	NodeCount  int    `json:"nodeCount"`
	LinkCount  int    `json:"linkCount"`
}

// Document is the graph artifact handed to the renderer.
type Document struct {
	Meta         Meta                      `json:"meta"`
	Categories   map[Category]CategoryInfo `json:"categories"`
	Nodes        []Node                    `json:"nodes"`
	Links        []Link                    `json:"links"`
	FileNodes    []Node                    `json:"fileNodes"`
	FileLinks    []Link                    `json:"fileLinks"`
	FileToDirMap map[string]string         `json:"fileToDirMap"`
}
