package reference

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more changes before
// invalidating the library.
const DefaultDebounce = 500 * time.Millisecond

// Watcher invalidates a Library when files under its pattern roots change.
// Sessions already started keep the context they loaded.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	dirty    atomic.Bool
	reloads  atomic.Int64

	// OnInvalidate, when set, runs after each invalidation.
	OnInvalidate func()
}

// NewWatcher creates a watcher for lib. debounce <= 0 uses DefaultDebounce.
func NewWatcher(lib *Library, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{lib: lib, watcher: fsw, debounce: debounce, logger: logger}, nil
}

// Start adds watches for every pattern root and processes events until ctx
// is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range watchRoots(w.lib.Patterns()) {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	go w.run(ctx)
	w.logger.Info("Reference watcher started", "patterns", w.lib.Patterns(), "debounce", w.debounce)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Reloads returns how many invalidations the watcher has triggered.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// watchRoots returns the static directory prefix of each pattern.
func watchRoots(patterns []string) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		base = filepath.FromSlash(base)
		if info, err := os.Stat(base); err == nil && !info.IsDir() {
			base = filepath.Dir(base)
		}
		if !seen[base] {
			seen[base] = true
			roots = append(roots, base)
		}
	}
	return roots
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("Reference root does not exist", "path", path)
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Reference watcher error", "error", err)

		case <-ticker.C:
			if w.dirty.Swap(false) {
				w.lib.Invalidate()
				w.reloads.Add(1)
				if w.OnInvalidate != nil {
					w.OnInvalidate()
				}
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !Extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	w.logger.Debug("Reference document changed", "path", event.Name, "op", event.Op.String())
	w.dirty.Store(true)
}
