package memstore

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

type session struct {
	repo   *Repository
	id     uint64
	closed atomic.Bool

	mu   sync.Mutex
	subs []uint64
}

func (s *session) check() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

// Refresh is a no-op: reads always see the committed tree.
func (s *session) Refresh() error {
	return s.check()
}

func (s *session) Exists(p string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	_, ok := lookup(s.repo.root, p)
	return ok, nil
}

func (s *session) Node(p string) (store.Node, error) {
	if err := s.check(); err != nil {
		return store.Node{}, err
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	n, ok := lookup(s.repo.root, p)
	if !ok {
		return store.Node{}, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	return toNode(p, n), nil
}

func (s *session) Children(p string) ([]store.Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	n, ok := lookup(s.repo.root, p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	if n.typ != store.TypeFolder {
		return nil, fmt.Errorf("%w: %s is not a folder", store.ErrConflict, p)
	}
	out := make([]store.Node, 0, len(n.children))
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		out = append(out, toNode(store.Join(p, name), n.children[name]))
	}
	return out, nil
}

func (s *session) ReadFile(p string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	n, ok := lookup(s.repo.root, p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	if n.typ != store.TypeFile {
		return nil, fmt.Errorf("%w: %s is not a file", store.ErrConflict, p)
	}
	return slices.Clone(n.data), nil
}

func (s *session) Begin() store.Txn {
	return &txn{session: s}
}

func (s *session) Subscribe(p string, deep bool, ops store.Op, fn func([]store.Event)) (store.Subscription, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	sub := s.repo.subscribe(s.id, store.Clean(p), deep, ops, fn)
	s.mu.Lock()
	s.subs = append(s.subs, sub.id)
	s.mu.Unlock()
	return sub, nil
}

func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	ids := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, id := range ids {
		s.repo.unsubscribe(id)
	}
	return nil
}

type txn struct {
	session *session
	changes []change
	done    bool
}

func (t *txn) WriteFile(p string, data []byte, meta store.FileMeta) error {
	if t.done {
		return store.ErrClosed
	}
	t.changes = append(t.changes, change{op: store.OpAdded, path: p, typ: store.TypeFile, data: data, meta: meta})
	return nil
}

func (t *txn) Remove(p string) error {
	if t.done {
		return store.ErrClosed
	}
	t.changes = append(t.changes, change{op: store.OpRemoved, path: p})
	return nil
}

func (t *txn) Commit() error {
	if t.done {
		return store.ErrClosed
	}
	if err := t.session.check(); err != nil {
		return err
	}
	t.done = true
	return t.session.repo.apply(t.session.id, t.changes)
}

func (t *txn) Rollback() {
	t.done = true
	t.changes = nil
}

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

func (r *Repository) subscribe(session uint64, p string, deep bool, ops store.Op, fn func([]store.Event)) *subscription {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextSub++
	sub := &subscription{repo: r, id: r.nextSub, session: session, path: p, deep: deep, ops: ops, fn: fn}
	r.subs[sub.id] = sub
	return sub
}

func (r *Repository) unsubscribe(id uint64) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.subs, id)
}

// dispatch delivers events on the committing goroutine, after the tree lock
// has been released.
func (r *Repository) dispatch(origin uint64, events []store.Event) {
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
		if origin != external && sub.session == origin {
			continue
		}
		var matched []store.Event
		for _, ev := range events {
			if sub.ops&ev.Op == 0 {
				continue
			}
			if store.Matches(ev.Path, sub.path, sub.deep) || (ev.From != "" && store.Matches(ev.From, sub.path, sub.deep)) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			sub.fn(matched)
		}
	}
}
