package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher forwards filesystem changes under a vault root as Events.
type Watcher struct {
	w      *fsnotify.Watcher
	root   string
	logger *slog.Logger
}

// NewWatcher registers root and its non-hidden subdirectories. Changes made
// after it returns are buffered by fsnotify until Run consumes them.
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addDirsRecursive(w, root); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{w: w, root: root, logger: logger}, nil
}

// Run forwards file changes to out until ctx is cancelled, then releases the
// watcher. Sends block while out is full.
//
// New directories created at runtime are added to the watch list and reported
// as a directory Created event. fsnotify reports a rename only on the OLD path,
// which is forwarded as Deleted; the new path arrives as its own Create.
func (wt *Watcher) Run(ctx context.Context, out chan<- Event) error {
	w, root, logger := wt.w, wt.root, wt.logger
	defer w.Close()

	logger.Info("watcher: started", slog.String("root", root))

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name
			if hiddenBelow(root, absPath) {
				continue
			}

			var next Event
			switch {
			case ev.Op&fsnotify.Create != 0:
				next = Event{Op: Created, Path: absPath}
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if strings.HasPrefix(info.Name(), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					next.IsDir = true
				}
			case ev.Op&fsnotify.Write != 0:
				next = Event{Op: Modified, Path: absPath}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				next = Event{Op: Deleted, Path: absPath}
			default:
				continue
			}
			if !send(next) {
				logger.Info("watcher: stopped")
				return nil
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// hiddenBelow reports whether p lies inside a dot-directory under root.
// Dot-files themselves are left to the vault's qualification rules.
func hiddenBelow(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts[:len(parts)-1] {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
