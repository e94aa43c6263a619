package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/phobologic/repoorbit/internal/fetch"
	"github.com/phobologic/repoorbit/internal/model"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "src/server/index.ts", `import { routes } from '../api/routes';
import { helper } from '../utils/helper';
`)
	writeTestFile(t, dir, "src/api/routes.ts", `import { helper } from '../utils/helper';
export const routes = [];
`)
	writeTestFile(t, dir, "src/utils/helper.ts", "export function helper() {}\n")
	writeTestFile(t, dir, "src/components/Button.jsx", `const h = require('../utils/helper');
export default function Button() { return null; }
`)
	writeTestFile(t, dir, "src/node_modules/react/index.js", "module.exports = {};\n")
	return dir
}

func runLocal(t *testing.T, args ...string) (*model.Document, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	var doc model.Document
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, stdout.String())
	}
	return &doc, stderr.String()
}

func TestRunLocalDirectoryView(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	doc, stderr := runLocal(t, "-local", dir, "-sparse-dir", "src")

	if doc.Meta.Mode != model.ModeDirectory {
		t.Errorf("mode: got %q", doc.Meta.Mode)
	}
	if doc.Meta.PathPrefix != "src" {
		t.Errorf("pathPrefix: got %q", doc.Meta.PathPrefix)
	}
	if len(doc.Nodes) != 4 {
		t.Errorf("expected 4 directory nodes, got %d: %+v", len(doc.Nodes), doc.Nodes)
	}
	if len(doc.FileNodes) != 4 {
		t.Errorf("expected 4 file nodes (node_modules skipped), got %d", len(doc.FileNodes))
	}
	if len(doc.Categories) == 0 {
		t.Error("missing categories")
	}
	if !strings.Contains(stderr, "graph published") {
		t.Errorf("expected publish log, got:\n%s", stderr)
	}
}

func TestRunLocalFileLinks(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	doc, _ := runLocal(t, "-mode", "file", "-local", dir, "-sparse-dir", "src")

	want := []model.Link{
		{Source: "api/routes.ts", Target: "server/index.ts"},
		{Source: "api/routes.ts", Target: "utils/helper.ts"},
		{Source: "components/Button.jsx", Target: "utils/helper.ts"},
		{Source: "server/index.ts", Target: "utils/helper.ts"},
	}
	if !reflect.DeepEqual(doc.FileLinks, want) {
		t.Errorf("file links:\n got %+v\nwant %+v", doc.FileLinks, want)
	}
	if doc.Meta.Mode != model.ModeFile || doc.Meta.LinkCount != 4 {
		t.Errorf("meta: %+v", doc.Meta)
	}
}

func TestRunMaxFiles(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	doc, _ := runLocal(t, "-local", dir, "-sparse-dir", "src", "-max-files", "1")
	if len(doc.FileNodes) != 1 {
		t.Fatalf("expected 1 file node, got %d", len(doc.FileNodes))
	}
	if doc.FileNodes[0].ID != "utils/helper.ts" {
		t.Errorf("expected the most connected file, got %q", doc.FileNodes[0].ID)
	}
	if len(doc.FileLinks) != 0 {
		t.Errorf("links to dropped files must be discarded, got %+v", doc.FileLinks)
	}
}

func TestRunToonToFile(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)
	out := filepath.Join(t.TempDir(), "graph.toon")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-local", dir, "-sparse-dir", "src", "-format", "toon", "-out", out}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty when writing to a file, got %q", stdout.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.HasPrefix(string(data), "repo:") {
		t.Errorf("expected TOON output, got:\n%s", data)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)
	cfg := filepath.Join(t.TempDir(), "repoorbit.yaml")
	writeTestFile(t, filepath.Dir(cfg), filepath.Base(cfg), "local: "+dir+"\nsparse_dir: src\nmode: file\n")

	doc, _ := runLocal(t, "-config", cfg)
	if doc.Meta.Mode != model.ModeFile {
		t.Errorf("mode from config: got %q", doc.Meta.Mode)
	}

	// Flags override the file.
	doc, _ = runLocal(t, "-config", cfg, "-mode", "directory")
	if doc.Meta.Mode != model.ModeDirectory {
		t.Errorf("mode flag override: got %q", doc.Meta.Mode)
	}
}

func TestRunMetricsOut(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)
	path := filepath.Join(t.TempDir(), "metrics.prom")

	runLocal(t, "-local", dir, "-sparse-dir", "src", "-metrics-out", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	for _, name := range []string{"repoorbit_builds_total", "repoorbit_files_walked"} {
		if !strings.Contains(string(data), name) {
			t.Errorf("metrics missing %s:\n%s", name, data)
		}
	}
}

func TestRunMissingSourceDir(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-local", t.TempDir(), "-sparse-dir", "src"}, &stdout, &stderr)
	if !errors.Is(err, fetch.ErrSourceDirNotFound) {
		t.Fatalf("expected ErrSourceDirNotFound, got %v", err)
	}
}

func TestRunInvalidOptions(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad mode", []string{"-local", dir, "-mode", "tree"}, "Mode"},
		{"bad format", []string{"-local", dir, "-format", "xml"}, "Format"},
		{"repo and local", []string{"-local", dir, "acme/widgets"}, "cannot be combined"},
		{"watch without local", []string{"-watch", "acme/widgets"}, "requires Local"},
		{"nothing to build", nil, "field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-V"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "repoorbit") {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunReplay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "frames.jsonl")
	out := filepath.Join(dir, "poses.jsonl")
	writeTestFile(t, dir, "frames.jsonl", `{"t":0,"hands":[]}
{"t":50,"hands":[]}
`)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"replay", "-in", in, "-out", out, "-interval", "25ms", "-tail", "0s"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("replay: %v\nstderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading poses: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 poses, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"state":"idle"`) {
		t.Errorf("no hands should leave the camera idle: %s", lines[0])
	}
	if !strings.Contains(stderr.String(), "replayed 2 frames") {
		t.Errorf("stderr: %q", stderr.String())
	}
}

func TestReorderArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"flags first", []string{"-mode", "file", "acme/widgets"}, []string{"-mode", "file", "acme/widgets"}},
		{"positional first", []string{"acme/widgets", "-max-files", "5"}, []string{"-max-files", "5", "acme/widgets"}},
		{"mixed", []string{"-sparse-dir", "lib", "acme/widgets", "-out", "g.json"}, []string{"-sparse-dir", "lib", "-out", "g.json", "acme/widgets"}},
		{"no flags", []string{"acme/widgets"}, []string{"acme/widgets"}},
		{"no args", nil, nil},
		{"bool flag", []string{"-V"}, []string{"-V"}},
		{"double dash", []string{"-watch", "--", "-odd"}, []string{"-watch", "-odd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reorderArgs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len: got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: got %q, want %q (full: %v)", i, got[i], tt.want[i], got)
					break
				}
			}
		})
	}
}
