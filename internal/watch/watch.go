// Package watch triggers debounced rebuilds when source files under a root
// change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/repoorbit/internal/discover"
)

// DefaultDebounce is how long the tree must be quiet before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches every walkable directory under a root.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// New creates a watcher on root and its walkable subdirectories.
func New(root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger.With("component", "watch"),
		watcher:  fw,
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every subdirectory the walker would enter.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run delivers onChange after each burst of relevant events, until ctx is
// done. onChange runs on the event loop, so rebuilds never overlap; events
// arriving during a rebuild schedule another one. The watcher is closed
// when Run returns.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	defer func() { _ = w.watcher.Close() }()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timerC:
			timerC = nil
			onChange(ctx)
		}
	}
}

// relevant reports whether event affects the walked file set. New
// directories are added to the watch as a side effect.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if discover.SkipDir(name) {
				return false
			}
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("cannot watch directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	if name == ".gitignore" {
		return true
	}
	// Removed or renamed directories cannot be stat'ed; treat them as changes
	// unless they are obviously skipped.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if filepath.Ext(name) == "" {
			return !discover.SkipDir(name)
		}
	}
	return discover.IsSourceName(name)
}
