package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches the views directory and forgets a view's cache entry
// and artifact whenever its source changes.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	engine   *Engine
	watchDir string
	ext      string
	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a watcher over every directory below watchDir.
func NewFileWatcher(engine *Engine, watchDir string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		engine:   engine,
		watchDir: watchDir,
		ext:      engine.config.SourceExt,
		done:     make(chan struct{}),
	}

	if err := fw.addWatchRecursive(watchDir); err != nil {
		watcher.Close()
		return nil, err
	}

	return fw, nil
}

func (fw *FileWatcher) addWatchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.watcher.Add(path)
		}
		return nil
	})
}

// Start handles events until Stop is called.
func (fw *FileWatcher) Start() {
	go func() {
		defer close(fw.done)
		for {
			select {
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				fw.handle(event)

			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.engine.logger.Warn("watcher error", "error", err)
			}
		}
	}()
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addWatchRecursive(event.Name); err != nil {
				fw.engine.logger.Warn("could not watch directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !fw.isTemplateFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	view, ok := fw.viewFor(event.Name)
	if !ok {
		fw.engine.ClearCache()
		return
	}
	fw.engine.logger.Info("view source changed", "view", view, "op", event.Op.String())
	fw.engine.ClearCacheFor(view)
}

// viewFor maps a source file path to its view id.
func (fw *FileWatcher) viewFor(path string) (string, bool) {
	rel, err := filepath.Rel(fw.watchDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), fw.ext), true
}

func (fw *FileWatcher) isTemplateFile(filename string) bool {
	return strings.HasSuffix(filename, fw.ext)
}

// Stop closes the watcher and waits for the event loop to exit if it was
// started.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		err = fw.watcher.Close()
		if errors.Is(err, fsnotify.ErrClosed) {
			err = nil
		}
	})
	return err
}

// Done is closed when the event loop exits.
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}
