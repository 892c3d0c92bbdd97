package reconcile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arisezione/librosoci/internal/docstore"
)

// debounceWindow batches bursts of file events (an archive copy fires
// several) into a single reconciliation pass.
const debounceWindow = 200 * time.Millisecond

// WatchCallback is called with the report of each watcher-driven pass.
type WatchCallback func(Report)

// Watch runs an fsnotify watcher on the store root and triggers a
// reconciliation pass after each burst of file changes, until ctx is
// cancelled. Directories created at runtime are added to the watch list.
// Events for the store's own index artifacts are ignored, as are writes
// performed while a pass is already pending.
func (r *Reconciler) Watch(ctx context.Context, opts Options, cb WatchCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := r.store.EnsureStructure(); err != nil {
		return err
	}
	if err := addDirsRecursive(w, r.store.Root()); err != nil {
		return err
	}

	r.logger.Info("watcher: started", slog.String("root", r.store.Root()))

	var passTimer *time.Timer
	var passCh <-chan time.Time

	schedulePass := func() {
		if passTimer == nil {
			passTimer = time.NewTimer(debounceWindow)
			passCh = passTimer.C
		} else {
			passTimer.Reset(debounceWindow)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if passTimer != nil {
				passTimer.Stop()
			}
			r.logger.Info("watcher: stopped")
			return nil

		case <-passCh:
			report, runErr := r.Run(ctx, opts)
			if runErr != nil {
				r.logger.Warn("watcher: pass failed", slog.String("error", runErr.Error()))
				continue
			}
			if cb != nil {
				cb(report)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						r.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedulePass()
					continue
				}
			}

			// The store rewrites its own index and metadata files after
			// every pass; reacting to those would loop forever.
			if docstore.IsIndexArtifact(filepath.Base(ev.Name)) || isScratchFile(ev.Name) {
				continue
			}
			schedulePass()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// isScratchFile reports whether name looks like an in-progress atomic write.
func isScratchFile(name string) bool {
	base := filepath.Base(name)
	return len(base) > 0 && base[0] == '.'
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
