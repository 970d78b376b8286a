package fsstore

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
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

// Refresh is a no-op: every read goes to the file system.
func (s *session) Refresh() error {
	return s.check()
}

func (s *session) Exists(p string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	_, err := s.repo.stat(p)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *session) Node(p string) (store.Node, error) {
	if err := s.check(); err != nil {
		return store.Node{}, err
	}
	info, err := s.repo.stat(p)
	if err != nil {
		return store.Node{}, err
	}
	return s.repo.node(p, info), nil
}

func (s *session) Children(p string) ([]store.Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	info, err := s.repo.stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a folder", store.ErrConflict, p)
	}
	entries, err := os.ReadDir(s.repo.osPath(p))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}
	out := make([]store.Node, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		out = append(out, s.repo.node(store.Join(p, e.Name()), fi))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (s *session) ReadFile(p string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	n, err := s.Node(p)
	if err != nil {
		return nil, err
	}
	if n.Type != store.TypeFile {
		return nil, fmt.Errorf("%w: %s is not a file", store.ErrConflict, p)
	}
	data, err := os.ReadFile(s.repo.osPath(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	return data, err
}

func (s *session) Begin() store.Txn {
	return &txn{session: s}
}

func (s *session) Subscribe(p string, deep bool, ops store.Op, fn func([]store.Event)) (store.Subscription, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	sub, err := s.repo.subscribe(s.id, store.Clean(p), deep, ops, fn)
	if err != nil {
		return nil, err
	}
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
