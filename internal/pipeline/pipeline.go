// Package pipeline runs graph builds: fetch, walk, resolve, reduce. Builds
// for the same source are coalesced while in flight and cached afterwards.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/phobologic/repoorbit/internal/discover"
	"github.com/phobologic/repoorbit/internal/fetch"
	"github.com/phobologic/repoorbit/internal/graph"
	"github.com/phobologic/repoorbit/internal/metrics"
	"github.com/phobologic/repoorbit/internal/model"
	"github.com/phobologic/repoorbit/internal/resolve"
)

const defaultCacheSize = 32

// Fetcher produces a local directory for sparseDir of repo.
type Fetcher interface {
	Fetch(ctx context.Context, repo, sparseDir string) (string, error)
}

// Request describes one build.
type Request struct {
	Repo      string
	SparseDir string
	// Local, when set, is a directory on disk that replaces the fetch stage.
	Local    string
	Mode     model.Mode
	MaxFiles int
}

// Key identifies the analysis a request needs. Mode and MaxFiles only
// affect reduction, so they are not part of it.
func (r Request) Key() string {
	if r.Local != "" {
		abs, err := filepath.Abs(filepath.Join(r.Local, r.SparseDir))
		if err != nil {
			abs = filepath.Join(r.Local, r.SparseDir)
		}
		return "local:" + abs
	}
	return fetch.Redact(r.Repo, "") + "@" + r.SparseDir
}

// Service builds graph documents. It is safe for concurrent use.
type Service struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *metrics.Registry
	workers int

	group singleflight.Group
	cache *lru.Cache[string, *model.Analysis]
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option       { return func(s *Service) { s.logger = l } }
func WithMetrics(m *metrics.Registry) Option { return func(s *Service) { s.metrics = m } }
func WithWorkers(n int) Option               { return func(s *Service) { s.workers = n } }

// WithCacheSize sets how many analyses are kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.cache = nil
		if n > 0 {
			s.cache, _ = lru.New[string, *model.Analysis](n)
		}
	}
}

// New returns a Service that fetches remote sources with f. f may be nil
// if only local requests are made.
func New(f Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		logger:  slog.Default(),
		metrics: metrics.DefaultRegistry(),
	}
	s.cache, _ = lru.New[string, *model.Analysis](defaultCacheSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build returns the graph document for req. Concurrent calls with the same
// Key share one analysis and receive the same error if it fails; failures
// are never cached.
func (s *Service) Build(ctx context.Context, req Request) (*model.Document, error) {
	log := s.logger.With("build_id", uuid.NewString(), "key", req.Key())

	a, err := s.analysis(ctx, req, log)
	s.metrics.RecordBuild(err)
	if err != nil {
		log.Error("build failed", "error", err)
		return nil, err
	}

	start := time.Now()
	doc := graph.Reduce(a, graph.Options{
		Repo:       displayName(req),
		Mode:       req.Mode,
		PathPrefix: req.SparseDir,
		MaxFiles:   req.MaxFiles,
		RootLabel:  rootLabel(req, a),
	})
	s.metrics.RecordStage("reduce", time.Since(start))
	s.metrics.RecordGraph(len(doc.Nodes), len(doc.Links), len(doc.FileNodes), len(doc.FileLinks))

	log.Info("graph built",
		"mode", doc.Meta.Mode,
		"nodes", doc.Meta.NodeCount,
		"links", doc.Meta.LinkCount)
	return doc, nil
}

// Invalidate drops any cached analysis for req.
func (s *Service) Invalidate(req Request) {
	if s.cache != nil {
		s.cache.Remove(req.Key())
	}
}

func (s *Service) analysis(ctx context.Context, req Request, log *slog.Logger) (*model.Analysis, error) {
	key := req.Key()
	if s.cache != nil {
		if a, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheLookup(true)
			log.Debug("analysis cache hit")
			return a, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	// The shared run must outlive any single caller giving up.
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		a, err := s.analyze(runCtx, req, log)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(key, a)
		}
		return a, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.RecordCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Analysis), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) analyze(ctx context.Context, req Request, log *slog.Logger) (*model.Analysis, error) {
	s.metrics.BuildsInFlight.Inc()
	defer s.metrics.BuildsInFlight.Dec()

	root, err := s.sourceRoot(ctx, req)
	if err != nil {
		return nil, err
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	start := time.Now()
	files, err := discover.Files(root)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	s.metrics.RecordStage("walk", time.Since(start))
	log.Debug("walked source tree", "root", root, "files", len(files))

	start = time.Now()
	a, stats, err := resolve.All(ctx, root, files, s.workers)
	if err != nil {
		return nil, fmt.Errorf("resolving imports: %w", err)
	}
	s.metrics.RecordStage("resolve", time.Since(start))
	s.metrics.RecordSource(stats.Files, stats.Edges, len(stats.Degraded))
	for _, rel := range stats.Degraded {
		log.Debug("structured parse degraded", "file", rel)
	}
	log.Info("resolved imports", "files", stats.Files, "edges", stats.Edges, "degraded", len(stats.Degraded))
	return a, nil
}

func (s *Service) sourceRoot(ctx context.Context, req Request) (string, error) {
	if req.Local != "" {
		root := filepath.Join(req.Local, req.SparseDir)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return "", fmt.Errorf("%s: %w", root, fetch.ErrSourceDirNotFound)
		}
		return root, nil
	}
	if s.fetcher == nil {
		return "", fmt.Errorf("no fetcher configured for %s", req.Repo)
	}
	start := time.Now()
	root, err := s.fetcher.Fetch(ctx, req.Repo, req.SparseDir)
	if err != nil {
		return "", err
	}
	s.metrics.RecordStage("fetch", time.Since(start))
	return root, nil
}

func displayName(req Request) string {
	if req.Local != "" {
		abs, err := filepath.Abs(req.Local)
		if err != nil {
			return filepath.Base(req.Local)
		}
		return filepath.Base(abs)
	}
	return fetch.Redact(req.Repo, "")
}

func rootLabel(req Request, a *model.Analysis) string {
	if req.SparseDir != "" && req.SparseDir != "." {
		return filepath.Base(req.SparseDir)
	}
	return filepath.Base(a.Root)
}
