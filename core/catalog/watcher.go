package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"wadio/logger"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the library must stay quiet before a change
// triggers a rescan. Copying an album produces a burst of events.
const DefaultDebounce = 5 * time.Second

// Watcher calls OnChange after files under Root are created, removed,
// renamed or written.
type Watcher struct {
	Root     string
	Debounce time.Duration
	OnChange func()

	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for every directory below root.
func NewWatcher(root string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{Root: root, Debounce: DefaultDebounce, OnChange: onChange, watcher: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds root and all of its subdirectories; fsnotify is not recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &ScanError{Path: path, Err: err}
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// Run processes events until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	// Reset on an unfired timer drops nothing stale (Go 1.23 timer semantics).
	timer := time.NewTimer(w.Debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						logger.Warn("failed to watch new directory", logger.String("path", event.Name), logger.ErrorField(err))
					}
				}
			}
			timer.Reset(w.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("library watcher error", logger.ErrorField(err))

		case <-timer.C:
			logger.Info("library changed, rescanning", logger.String("root", w.Root))
			w.OnChange()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return false
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		// new directories matter regardless of their name
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return IsAudioFile(event.Name)
}
