package local

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// rootWatcher reports every change below a root folder. fsnotify watches a
// single directory level, so every folder is added and new folders are added
// as they appear.
type rootWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func()
	logger   *slog.Logger
	done     chan struct{}
}

// newRootWatcher starts watching root and calls onChange for each event.
func newRootWatcher(root string, onChange func(), logger *slog.Logger) (*rootWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rw := &rootWatcher{
		watcher:  w,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if err := rw.addTree(root); err != nil {
		w.Close()
		return nil, err
	}

	go rw.loop()
	return rw, nil
}

func (rw *rootWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable folders are not watched
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return rw.watcher.Add(path)
		}
		return nil
	})
}

func (rw *rootWatcher) loop() {
	defer close(rw.done)

	for {
		select {
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.onChange()
			if event.Has(fsnotify.Create) {
				if err := rw.addTree(event.Name); err != nil {
					rw.logger.Debug("watch new path failed", "path", event.Name, "err", err)
				}
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			// events may have been dropped
			rw.onChange()
			rw.logger.Warn("file watcher error", "err", err)
		}
	}
}

// Close stops watching and waits for the event loop to exit.
func (rw *rootWatcher) Close() error {
	err := rw.watcher.Close()
	<-rw.done
	return err
}
