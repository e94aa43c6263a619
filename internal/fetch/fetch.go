// Package fetch obtains sparse, cached checkouts of remote repositories.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultFetchTimeout  = 60 * time.Second
	DefaultConfigTimeout = 30 * time.Second
)

var (
	ErrInvalidRepo       = errors.New("invalid repository identifier")
	ErrSourceDirNotFound = errors.New("source directory not found")
	ErrTimeout           = errors.New("timed out")
	ErrGit               = errors.New("git command failed")
)

// FetchError reports a failed fetch stage. Msg is always credential-free;
// Err is a sentinel from this package or a context error.
type FetchError struct {
	Op   string
	Repo string
	Msg  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %s", e.Op, e.Repo, e.Msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GitRunner runs git with args and returns its combined output on failure.
type GitRunner func(ctx context.Context, args ...string) error

// runGitCommand is the default GitRunner.
var runGitCommand GitRunner = func(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Fetcher produces local sparse checkouts under CacheDir. A checkout that
// already holds the requested directory is reused without touching git.
// Fetches that share a checkout run one at a time.
type Fetcher struct {
	CacheDir      string
	Token         string
	FetchTimeout  time.Duration
	ConfigTimeout time.Duration
	Logger        *slog.Logger
	Git           GitRunner

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Fetch returns the local path of sparseDir inside the checkout of repo.
func (f *Fetcher) Fetch(ctx context.Context, repo, sparseDir string) (string, error) {
	r, err := ParseRepo(repo)
	if err != nil {
		return "", &FetchError{Op: "validate", Repo: f.redact(repo), Msg: f.redact(err.Error()), Err: ErrInvalidRepo}
	}
	dir, err := cleanSparseDir(sparseDir)
	if err != nil {
		return "", &FetchError{Op: "validate", Repo: r.String(), Msg: err.Error(), Err: ErrInvalidRepo}
	}
	if f.CacheDir == "" {
		return "", &FetchError{Op: "validate", Repo: r.String(), Msg: "cache directory not configured", Err: ErrInvalidRepo}
	}

	dest := r.CachePath(f.CacheDir)
	log := f.logger().With("repo", r.String(), "sparse_dir", dir)

	unlock, err := f.lock(ctx, dest)
	if err != nil {
		return "", &FetchError{Op: "clone", Repo: r.String(), Msg: err.Error(), Err: err}
	}
	defer unlock()

	if isDir(dest) {
		return f.extend(ctx, r, dest, dir, log)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &FetchError{Op: "clone", Repo: r.String(), Msg: f.redact(err.Error()), Err: err}
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), "."+r.Name+"-*")
	if err != nil {
		return "", &FetchError{Op: "clone", Repo: r.String(), Msg: f.redact(err.Error()), Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	log.Info("cloning repository", "url", f.redact(r.CloneURL(f.Token)))
	start := time.Now()
	if err := f.git(ctx, "clone", f.fetchTimeout(), r,
		"clone", "--depth", "1", "--filter=blob:none", "--sparse", r.CloneURL(f.Token), tmp); err != nil {
		return "", err
	}
	if err := f.git(ctx, "sparse-checkout", f.configTimeout(), r, "-C", tmp, "sparse-checkout", "set", dir); err != nil {
		return "", err
	}
	if _, err := f.verify(r, tmp, dir); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, dest); err != nil {
		// Another process may have populated dest first.
		if isDir(dest) {
			return f.extend(ctx, r, dest, dir, log)
		}
		return "", &FetchError{Op: "clone", Repo: r.String(), Msg: f.redact(err.Error()), Err: err}
	}
	committed = true
	log.Info("checkout ready", "path", dest, "elapsed", time.Since(start).Round(time.Millisecond))
	return filepath.Join(dest, dir), nil
}

// extend reuses the checkout at dest, adding dir to its sparse set when it
// is missing.
func (f *Fetcher) extend(ctx context.Context, r Repo, dest, dir string, log *slog.Logger) (string, error) {
	if isDir(filepath.Join(dest, dir)) {
		log.Debug("reusing cached checkout", "path", dest)
		return filepath.Join(dest, dir), nil
	}
	log.Info("extending sparse checkout", "path", dest)
	if err := f.git(ctx, "sparse-checkout", f.configTimeout(), r, "-C", dest, "sparse-checkout", "add", dir); err != nil {
		return "", err
	}
	return f.verify(r, dest, dir)
}

// lock serializes work on the checkout at dest.
func (f *Fetcher) lock(ctx context.Context, dest string) (func(), error) {
	f.mu.Lock()
	if f.locks == nil {
		f.locks = make(map[string]chan struct{})
	}
	ch, ok := f.locks[dest]
	if !ok {
		ch = make(chan struct{}, 1)
		f.locks[dest] = ch
	}
	f.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) git(ctx context.Context, op string, timeout time.Duration, r Repo, args ...string) error {
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := f.Git
	if run == nil {
		run = runGitCommand
	}
	err := run(gctx, args...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &FetchError{Op: op, Repo: r.String(), Msg: ctxErr.Error(), Err: ctxErr}
	}
	if errors.Is(gctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Op: op, Repo: r.String(), Msg: fmt.Sprintf("timed out after %s", timeout), Err: ErrTimeout}
	}
	return &FetchError{Op: op, Repo: r.String(), Msg: f.redact(err.Error()), Err: ErrGit}
}

func (f *Fetcher) verify(r Repo, checkout, dir string) (string, error) {
	path := filepath.Join(checkout, dir)
	if !isDir(path) {
		return "", &FetchError{
			Op:   "verify",
			Repo: r.String(),
			Msg:  fmt.Sprintf("source directory %q not found", dir),
			Err:  ErrSourceDirNotFound,
		}
	}
	return path, nil
}

func (f *Fetcher) redact(s string) string { return Redact(s, f.Token) }

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Fetcher) fetchTimeout() time.Duration {
	if f.FetchTimeout > 0 {
		return f.FetchTimeout
	}
	return DefaultFetchTimeout
}

func (f *Fetcher) configTimeout() time.Duration {
	if f.ConfigTimeout > 0 {
		return f.ConfigTimeout
	}
	return DefaultConfigTimeout
}

func cleanSparseDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("empty source directory")
	}
	clean := filepath.ToSlash(filepath.Clean(dir))
	if filepath.IsAbs(dir) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("source directory %q must be a relative subdirectory", dir)
	}
	return clean, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
