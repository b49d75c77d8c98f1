package router

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is how often the fallback poller checks the file when
// fsnotify is unavailable.
const pollInterval = 2 * time.Second

// Watcher keeps the registry in sync with an executors YAML file.
// Entries added to the file register at runtime, entries removed from
// it deregister. File-born executors always start experimental; only
// Registry.Promote clears the flag.
type Watcher struct {
	registry *Registry
	router   *Router
	path     string

	fw   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	// mu serializes reloads and protects managed.
	mu sync.Mutex
	// managed holds IDs this watcher registered, so removing an
	// entry from the file only deregisters executors the file owns.
	managed map[string]bool
}

// NewWatcher loads the file and starts watching it for changes. A
// missing file is not an error; the watcher picks it up when it
// appears. If fsnotify cannot be initialized the watcher degrades to
// polling.
func NewWatcher(registry *Registry, router *Router, path string) (*Watcher, error) {
	w := &Watcher{
		registry: registry,
		router:   router,
		path:     path,
		done:     make(chan struct{}),
		managed:  make(map[string]bool),
	}

	if err := w.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without inotify and poll the file instead.
		log.Printf("[router] fsnotify unavailable, polling %s: %v", path, err)
		w.wg.Add(1)
		go w.poll()
		return w, nil
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.fw = fw
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				log.Printf("[router] reload %s: %v", w.path, err)
			}
		case <-w.fw.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// poll is the fallback loop when fsnotify is unavailable. It reloads
// whenever the file's modification time advances.
func (w *Watcher) poll() {
	defer w.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				if err := w.Reload(); err != nil {
					log.Printf("[router] reload %s: %v", w.path, err)
				}
			}
		}
	}
}

// Reload applies the file to the registry. IDs not currently
// registered come in as experimental regardless of what the file
// claims. Already-registered executors keep their experimental flag
// so a promotion survives file edits. Invalid entries are skipped.
func (w *Watcher) Reload() error {
	execs, err := LoadRegistryFile(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	seen := make(map[string]bool, len(execs))
	for _, e := range execs {
		seen[e.ID] = true
		current, registered := w.registry.Get(e.ID)
		if registered {
			e.Experimental = current.Experimental
		} else {
			e.Experimental = true
		}
		if err := w.registry.Register(e); err != nil {
			log.Printf("[router] skipping executor from %s: %v", filepath.Base(w.path), err)
			continue
		}
		if !registered {
			w.managed[e.ID] = true
		}
	}
	for id := range w.managed {
		if !seen[id] {
			w.registry.Deregister(id)
			delete(w.managed, id)
			log.Printf("[router] executor %s removed from %s", id, filepath.Base(w.path))
		}
	}
	w.mu.Unlock()

	if w.router != nil {
		w.router.Reconcile()
	}
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	var err error
	if w.fw != nil {
		err = w.fw.Close()
	}
	w.wg.Wait()
	return err
}
