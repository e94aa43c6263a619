// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/repoorbit/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a graph document into TOON format. The file→directory
// table is omitted since it is derivable from the node ids.
func Encode(doc *model.Document) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(doc.Meta.Repo)))
	parts = append(parts, fmt.Sprintf("mode: %s", encodeValue(string(doc.Meta.Mode))))
	parts = append(parts, fmt.Sprintf("pathPrefix: %s", encodeValue(doc.Meta.PathPrefix)))
	parts = append(parts, fmt.Sprintf("nodeCount: %d", doc.Meta.NodeCount))
	parts = append(parts, fmt.Sprintf("linkCount: %d", doc.Meta.LinkCount))

	keys := make([]string, 0, len(doc.Categories))
	for k := range doc.Categories {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var categoryRows [][]string
	for _, k := range keys {
		info := doc.Categories[model.Category(k)]
		categoryRows = append(categoryRows, []string{k, info.Color, info.Label})
	}
	parts = append(parts, formatTabular("categories", []string{"key", "color", "label"}, categoryRows))

	parts = append(parts, formatTabular("nodes", []string{"id", "label", "category", "fileCount"}, nodeRows(doc.Nodes)))
	parts = append(parts, formatTabular("links", []string{"source", "target"}, linkRows(doc.Links)))
	parts = append(parts, formatTabular("fileNodes", []string{"id", "label", "category", "fileCount"}, nodeRows(doc.FileNodes)))
	parts = append(parts, formatTabular("fileLinks", []string{"source", "target"}, linkRows(doc.FileLinks)))

	return strings.Join(parts, "\n")
}

func nodeRows(nodes []model.Node) [][]string {
	rows := make([][]string, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		rows = append(rows, []string{n.ID, n.Label, string(n.Category), strconv.Itoa(n.FileCount)})
	}
	return rows
}

func linkRows(links []model.Link) [][]string {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, []string{l.Source, l.Target})
	}
	return rows
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
