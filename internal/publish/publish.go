// Package publish encodes graph documents and writes them to an output
// target: stdout, a local file, or an S3-compatible bucket.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phobologic/repoorbit/internal/config"
	"github.com/phobologic/repoorbit/internal/model"
	"github.com/phobologic/repoorbit/internal/toon"
)

// Encode renders doc in the named format ("json" or "toon").
func Encode(doc *model.Document, format string) ([]byte, error) {
	switch format {
	case "", "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding graph: %w", err)
		}
		return append(data, '\n'), nil
	case "toon":
		return []byte(toon.Encode(doc) + "\n"), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// ContentType returns the MIME type of the named format.
func ContentType(format string) string {
	if format == "toon" {
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

// Sink receives encoded documents.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	String() string
}

// Open returns the sink for target: "-" or "" for w, "s3://bucket/key" for
// object storage, anything else is a file path.
func Open(target, format string, w io.Writer, s3 config.S3Options) (Sink, error) {
	switch {
	case target == "" || target == "-":
		return &Writer{W: w}, nil
	case strings.HasPrefix(target, "s3://"):
		bucket, key, err := ParseS3URL(target)
		if err != nil {
			return nil, err
		}
		return NewS3(s3, bucket, key, ContentType(format))
	default:
		return &File{Path: target}, nil
	}
}

// Writer writes documents to an io.Writer.
type Writer struct {
	W io.Writer
}

func (s *Writer) Write(_ context.Context, data []byte) error {
	_, err := s.W.Write(data)
	return err
}

func (s *Writer) String() string { return "stdout" }

// File replaces the file at Path atomically: readers see either the old
// document or the new one.
type File struct {
	Path string
}

func (s *File) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", s.Path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.Path, err)
	}
	return nil
}

func (s *File) String() string { return s.Path }
