// Package watcher provides debounced, recursive file system watching for
// store directories.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the time to wait after the last file event before
// delivering a batch. This coalesces rapid changes (e.g., an editor's
// save sequence) into a single notification.
const DefaultDebounce = 100 * time.Millisecond

// Op describes what happened to a path.
type Op int

// Event operations.
const (
	Created Op = iota + 1
	Written
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Written:
		return "written"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one change below the watched root.
type Event struct {
	Path string
	Op   Op
}

// Watcher watches a directory tree and invokes a callback with debounced
// batches of events. Directories created after New are watched as well.
// Hidden entries (leading dot) are ignored.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	delay    time.Duration
	callback func([]Event)

	mu      sync.Mutex
	timer   *time.Timer
	pending []Event
}

// New creates a Watcher for the tree at root.
func New(root string, delay time.Duration, callback func([]Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	w := &Watcher{fsw: fsw, root: root, delay: delay, callback: callback}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run starts the watch loop. It blocks until the context is canceled.
// Errors from the underlying watcher are passed to the optional errFn callback.
func (w *Watcher) Run(ctx context.Context, errFn func(error)) {
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event, errFn)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errFn != nil {
				errFn(err)
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event, errFn func(error)) {
	if hidden(w.root, event.Name) {
		return
	}
	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = Created
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files may land in the new directory before it is watched;
			// walking it reports them as created.
			if err := w.addTree(event.Name); err != nil && errFn != nil {
				errFn(err)
			}
			w.queueTree(event.Name)
		}
	case event.Has(fsnotify.Write):
		op = Written
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = Removed
	default:
		return
	}
	w.queue(Event{Path: event.Name, Op: op})
}

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
		if path != w.root && hidden(w.root, path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) queueTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if hidden(w.root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		w.queue(Event{Path: path, Op: Created})
		return nil
	})
}

func (w *Watcher) queue(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, e)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(batch) > 0 {
		w.callback(batch)
	}
}

// hidden reports whether any segment of path below root starts with a dot.
func hidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") && seg != ".." {
			return true
		}
	}
	return false
}
