package fetch

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

const defaultHost = "github.com"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Repo is a parsed repository identifier.
type Repo struct {
	Host  string
	Owner string // May contain slashes for nested groups
	Name  string
	SSH   bool
}

// ParseRepo accepts "owner/repo", an https URL, or an scp-style
// "git@host:owner/repo" address. Userinfo in URLs is discarded.
func ParseRepo(id string) (Repo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Repo{}, fmt.Errorf("%w: empty", ErrInvalidRepo)
	}

	var (
		r    Repo
		path string
	)
	switch {
	case strings.HasPrefix(id, "git@"):
		hostPath := strings.TrimPrefix(id, "git@")
		host, p, ok := strings.Cut(hostPath, ":")
		if !ok || host == "" {
			return Repo{}, fmt.Errorf("%w: malformed ssh address", ErrInvalidRepo)
		}
		r.Host, r.SSH, path = host, true, p
	case strings.Contains(id, "://"):
		u, err := url.Parse(id)
		if err != nil {
			return Repo{}, fmt.Errorf("%w: malformed url", ErrInvalidRepo)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return Repo{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepo, u.Scheme)
		}
		if u.Hostname() == "" {
			return Repo{}, fmt.Errorf("%w: missing host", ErrInvalidRepo)
		}
		r.Host, path = strings.ToLower(u.Host), u.Path
	default:
		r.Host, path = defaultHost, id
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || (r.Host == defaultHost && len(parts) != 2) {
		return Repo{}, fmt.Errorf("%w: expected owner/repo", ErrInvalidRepo)
	}
	for _, p := range parts {
		if p == "." || p == ".." || !segmentPattern.MatchString(p) {
			return Repo{}, fmt.Errorf("%w: bad path segment %q", ErrInvalidRepo, p)
		}
	}
	r.Owner = strings.Join(parts[:len(parts)-1], "/")
	r.Name = parts[len(parts)-1]
	return r, nil
}

// String returns the credential-free identifier.
func (r Repo) String() string {
	if r.Host == defaultHost {
		return r.Owner + "/" + r.Name
	}
	return r.Host + "/" + r.Owner + "/" + r.Name
}

// CloneURL returns the URL handed to git. A non-empty token is injected as
// https userinfo; ssh addresses ignore it.
func (r Repo) CloneURL(token string) string {
	if r.SSH {
		return fmt.Sprintf("git@%s:%s/%s.git", r.Host, r.Owner, r.Name)
	}
	u := url.URL{Scheme: "https", Host: r.Host, Path: "/" + r.Owner + "/" + r.Name + ".git"}
	if token != "" {
		u.User = url.UserPassword("x-access-token", token)
	}
	return u.String()
}

// CachePath returns the checkout location for r under cacheDir.
func (r Repo) CachePath(cacheDir string) string {
	return filepath.Join(cacheDir, r.Host, filepath.FromSlash(r.Owner), r.Name)
}

var userinfoPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s]+@`)

// Redact masks token and any URL userinfo in s.
func Redact(s, token string) string {
	if token != "" {
		s = strings.ReplaceAll(s, token, "***")
		if escaped := url.PathEscape(token); escaped != token {
			s = strings.ReplaceAll(s, escaped, "***")
		}
	}
	return userinfoPattern.ReplaceAllString(s, "${1}***@")
}

// DefaultCacheDir resolves the checkout cache: $REPOORBIT_CACHE_DIR, then
// $XDG_CACHE_HOME/repoorbit/repos, then the user cache under the home dir.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("REPOORBIT_CACHE_DIR"); dir != "" {
		return dir, nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "repoorbit", "repos"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "repoorbit", "repos"), nil
	}

	return filepath.Join(home, ".cache", "repoorbit", "repos"), nil
}
