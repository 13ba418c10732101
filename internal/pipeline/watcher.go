package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// sourceWatcher watches source trees recursively and filters out changes that
// cannot affect the build.
type sourceWatcher struct {
	fs         *fsnotify.Watcher
	roots      []string
	ignore     map[string]bool
	extensions map[string]bool
	skip       []string // the artifact; siblings in its directory stay watched
	logger     *slog.Logger
}

func newSourceWatcher(roots, ignore, extensions []string, artifact string, logger *slog.Logger) (*sourceWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &sourceWatcher{
		fs:         fw,
		ignore:     make(map[string]bool, len(ignore)),
		extensions: make(map[string]bool, len(extensions)),
		logger:     logger,
	}
	for _, name := range ignore {
		w.ignore[name] = true
	}
	for _, ext := range extensions {
		w.extensions[strings.ToLower(ext)] = true
	}
	for _, root := range roots {
		w.roots = append(w.roots, filepath.Clean(root))
	}
	if artifact != "" {
		w.skip = append(w.skip, filepath.Clean(artifact))
	}

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree adds root and every directory below it that isn't ignored.
func (w *sourceWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			// Directories can vanish while we walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (w.ignore[d.Name()] || w.skipped(path)) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.logger.Debug("Watching directory", "path", path)
		return nil
	})
}

// relevant reports whether ev should invalidate the build. New directories
// are added to the watch as a side effect.
func (w *sourceWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if w.skipped(ev.Name) || w.ignoredPath(ev.Name) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
			}
			return len(w.extensions) == 0
		}
	}

	if len(w.extensions) > 0 && !w.extensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return false
	}
	return true
}

func (w *sourceWatcher) skipped(path string) bool {
	for _, s := range w.skip {
		if path == s || strings.HasPrefix(path, s+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ignoredPath reports whether any component of path below its watch root is
// an ignored name.
func (w *sourceWatcher) ignoredPath(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if w.ignore[part] {
				return true
			}
		}
		return false
	}
	return false
}

func (w *sourceWatcher) Close() error {
	return w.fs.Close()
}
