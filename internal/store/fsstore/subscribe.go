package fsstore

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/watcher"
)

type subscription struct {
	repo    *Repository
	id      uint64
	session uint64
	path    string
	deep    bool
	ops     store.Op
	fn      func([]store.Event)
}

func (s *subscription) Close() error {
	s.repo.unsubscribe(s.id)
	return nil
}

// subscribe registers a listener, starting the watcher on first use.
func (r *Repository) subscribe(session uint64, p string, deep bool, ops store.Op, fn func([]store.Event)) (*subscription, error) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.watch == nil {
		w, err := watcher.New(r.dir, r.debounce, r.deliver)
		if err != nil {
			return nil, fmt.Errorf("watching %s: %w", r.dir, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		r.watch, r.cancel = w, cancel
		go w.Run(ctx, func(err error) {
			r.logger.Warn("watch error", logging.Err(err))
		})
	}
	r.nextSub++
	sub := &subscription{repo: r, id: r.nextSub, session: session, path: p, deep: deep, ops: ops, fn: fn}
	r.subs[sub.id] = sub
	return sub, nil
}

// unsubscribe removes a listener and stops the watcher when none are left.
func (r *Repository) unsubscribe(id uint64) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.subs, id)
	if len(r.subs) == 0 {
		if err := r.stopWatchLocked(); err != nil {
			r.logger.Debug("closing watcher", logging.Err(err))
		}
	}
}

// deliver converts a batch of file system events and dispatches it.
func (r *Repository) deliver(batch []watcher.Event) {
	events := make([]store.Event, 0, len(batch))
	origins := make([]uint64, 0, len(batch))
	for _, e := range batch {
		p, ok := r.storePath(e.Path)
		if !ok || p == "/" {
			continue
		}
		ev := store.Event{Path: p}
		switch e.Op {
		case watcher.Created:
			ev.Op = store.OpAdded
		case watcher.Written:
			ev.Op = store.OpChanged
		case watcher.Removed:
			ev.Op = store.OpRemoved
		default:
			continue
		}
		events = append(events, ev)
		origins = append(origins, r.committedBy(p))
	}
	if len(events) == 0 {
		return
	}

	r.subMu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for _, id := range slices.Sorted(maps.Keys(r.subs)) {
		subs = append(subs, r.subs[id])
	}
	r.subMu.Unlock()

	for _, sub := range subs {
		var matched []store.Event
		for i, ev := range events {
			if origins[i] == sub.session || sub.ops&ev.Op == 0 {
				continue
			}
			if store.Matches(ev.Path, sub.path, sub.deep) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			sub.fn(matched)
		}
	}
}
