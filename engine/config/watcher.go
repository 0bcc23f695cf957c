package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
)

const watcherQueueSize = 4

// Watcher reloads a settings file whenever it is written. Parsed settings are
// queued and picked up with Drain between frames.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	queue *containers.RingQueue[Settings]

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors replace files on save so the directory is watched instead
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    abs,
		watcher: fw,
		queue:   containers.NewRingQueue[Settings](watcherQueueSize),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s, err := Load(w.path)
			if err != nil {
				core.LogError("settings reload failed, keeping previous settings: %s", err)
				continue
			}
			core.LogInfo("settings reloaded from %s", w.path)
			w.mu.Lock()
			w.queue.Overwrite(s)
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("settings watcher: %s", err)
		}
	}
}

// Drain empties the queue and returns the newest settings, if any.
func (w *Watcher) Drain() (Settings, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var (
		latest Settings
		found  bool
	)
	for !w.queue.IsEmpty() {
		s, err := w.queue.Dequeue()
		if err != nil {
			break
		}
		latest, found = s, true
	}
	return latest, found
}

func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
