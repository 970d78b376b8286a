// Package watched tracks the content of one watched folder and reports what
// changed since the previous scan.
package watched

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// Folder is a watched folder. Scan is called from a single goroutine; the
// dirty flag may be set from store notification goroutines.
type Folder struct {
	path       string
	priority   int
	session    store.Session
	converters []Converter
	logger     *logging.Logger

	dirty atomic.Bool

	mu        sync.Mutex
	inventory map[string]string
	sub       store.Subscription
}

// New returns a folder that is not yet listening for changes.
func New(sess store.Session, path string, priority int, converters []Converter, logger *logging.Logger) *Folder {
	return &Folder{
		path:       store.Clean(path),
		priority:   priority,
		session:    sess,
		converters: converters,
		logger:     logger.With(map[string]string{"folder": store.Clean(path)}),
		inventory:  map[string]string{},
	}
}

// Path returns the folder path.
func (f *Folder) Path() string { return f.path }

// Priority returns the priority given to the folder's resources.
func (f *Folder) Priority() int { return f.priority }

// String implements fmt.Stringer.
func (f *Folder) String() string {
	return fmt.Sprintf("watched folder %s (priority %d)", f.path, f.priority)
}

// Start subscribes to changes of the folder's children and marks the folder
// for an initial scan.
func (f *Folder) Start() error {
	sub, err := f.session.Subscribe(f.path, false, store.OpAll, func([]store.Event) {
		f.MarkDirty()
	})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()
	f.MarkDirty()
	return nil
}

// Close stops listening for changes.
func (f *Folder) Close() error {
	f.mu.Lock()
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// MarkDirty requests a scan.
func (f *Folder) MarkDirty() { f.dirty.Store(true) }

// NeedsScan reports whether a change was seen since the last scan.
func (f *Folder) NeedsScan() bool { return f.dirty.Load() }

// Inventory returns the last reported digests keyed by resource id.
func (f *Folder) Inventory() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.inventory)
}

// Scan lists the folder and returns the resources added or changed and the
// ids removed since the previous scan. A folder that no longer exists
// reports its whole inventory as removed.
func (f *Folder) Scan() (resource.ScanResult, error) {
	f.dirty.Store(false)

	children, err := f.session.Children(f.path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		f.dirty.Store(true)
		return resource.ScanResult{}, fmt.Errorf("listing %s: %w", f.path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result resource.ScanResult
	current := make(map[string]string, len(children))
	for _, child := range children {
		conv := f.converterFor(child)
		if conv == nil {
			continue
		}
		res, err := conv.Convert(f.session, child, f.priority)
		if err != nil {
			f.logger.Warn("skipping resource", map[string]string{
				"node":      child.Path,
				"converter": conv.Name(),
				"error":     err.Error(),
			})
			// Keep what the installer already knows so a failing read is
			// not reported as a removal.
			if digest, ok := f.inventory[child.Path]; ok {
				current[child.Path] = digest
			}
			continue
		}
		current[res.ID] = res.Digest
		if prev, ok := f.inventory[res.ID]; !ok || prev != res.Digest {
			result.ToAdd = append(result.ToAdd, res)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(f.inventory)) {
		if _, ok := current[id]; !ok {
			result.ToRemove = append(result.ToRemove, id)
		}
	}
	f.inventory = current

	if !result.Empty() {
		f.logger.Debug("folder scanned", map[string]string{
			"added":   fmt.Sprint(len(result.ToAdd)),
			"removed": fmt.Sprint(len(result.ToRemove)),
		})
	}
	return result, nil
}

func (f *Folder) converterFor(node store.Node) Converter {
	for _, c := range f.converters {
		if c.Accepts(node) {
			return c
		}
	}
	return nil
}
