// Package memstore is an in-memory store.Repository. All sessions of one
// Repository share a single tree; commits swap in a modified copy so every
// transaction is applied atomically.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// external is the origin of changes made through the Repository helpers.
// They are delivered to every subscriber.
const external = 0

type node struct {
	typ      store.NodeType
	data     []byte
	props    map[string]any
	meta     store.FileMeta
	children map[string]*node
}

func newFolder(now time.Time) *node {
	return &node{typ: store.TypeFolder, meta: store.FileMeta{Modified: now}, children: map[string]*node{}}
}

func (n *node) clone() *node {
	c := &node{typ: n.typ, data: n.data, props: n.props, meta: n.meta}
	if n.children != nil {
		c.children = make(map[string]*node, len(n.children))
		for name, child := range n.children {
			c.children[name] = child.clone()
		}
	}
	return c
}

// Repository is an in-memory tree. The zero value is not usable; use New.
type Repository struct {
	mu   sync.RWMutex
	root *node
	now  func() time.Time

	nextSession atomic.Uint64

	subMu   sync.Mutex
	nextSub uint64
	subs    map[uint64]*subscription
}

// New returns an empty repository containing only the root folder.
func New() *Repository {
	return &Repository{
		root: newFolder(time.Now()),
		now:  time.Now,
		subs: map[uint64]*subscription{},
	}
}

// SetClock overrides the clock used for modification times.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Login opens a session.
func (r *Repository) Login(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{repo: r, id: r.nextSession.Add(1)}, nil
}

// lookup walks the tree. Callers hold r.mu.
func lookup(root *node, p string) (*node, bool) {
	cur := root
	for _, name := range split(p) {
		if cur.children == nil {
			return nil, false
		}
		next, ok := cur.children[name]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func split(p string) []string {
	p = strings.Trim(store.Clean(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func toNode(p string, n *node) store.Node {
	out := store.Node{
		Path:     store.Clean(p),
		Name:     store.Base(p),
		Type:     n.typ,
		Modified: n.meta.Modified,
		Size:     int64(len(n.data)),
		Encoding: n.meta.Encoding,
		MimeType: n.meta.MimeType,
	}
	if out.Path == "/" {
		out.Name = ""
	}
	if n.props != nil {
		out.Properties = maps.Clone(n.props)
	}
	return out
}

// change is one staged mutation.
type change struct {
	op    store.Op
	path  string
	from  string
	typ   store.NodeType
	data  []byte
	props map[string]any
	meta  store.FileMeta
}

// apply runs changes against a copy of the tree and swaps it in on success.
func (r *Repository) apply(origin uint64, changes []change) error {
	r.mu.Lock()
	root := r.root.clone()
	now := r.now()
	var events []store.Event
	for _, c := range changes {
		evs, err := applyOne(root, c, now)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		events = append(events, evs...)
	}
	r.root = root
	r.mu.Unlock()

	r.dispatch(origin, events)
	return nil
}

func applyOne(root *node, c change, now time.Time) ([]store.Event, error) {
	switch c.op {
	case store.OpAdded, store.OpChanged:
		return put(root, c, now)
	case store.OpRemoved:
		return remove(root, c.path), nil
	case store.OpMoved:
		return move(root, c.from, c.path, now)
	default:
		return nil, fmt.Errorf("unsupported change %v", c.op)
	}
}

// mkdirs creates the folders leading to p and returns the parent of p.
func mkdirs(root *node, p string, now time.Time, events *[]store.Event) (*node, error) {
	cur := root
	names := split(p)
	built := ""
	for _, name := range names[:len(names)-1] {
		built += "/" + name
		next, ok := cur.children[name]
		if !ok {
			next = newFolder(now)
			cur.children[name] = next
			*events = append(*events, store.Event{Op: store.OpAdded, Path: built})
		}
		if next.typ != store.TypeFolder {
			return nil, fmt.Errorf("%w: %s is not a folder", store.ErrConflict, built)
		}
		cur = next
	}
	return cur, nil
}

func put(root *node, c change, now time.Time) ([]store.Event, error) {
	if len(split(c.path)) == 0 {
		return nil, fmt.Errorf("%w: cannot replace the root folder", store.ErrConflict)
	}
	var events []store.Event
	parent, err := mkdirs(root, c.path, now, &events)
	if err != nil {
		return nil, err
	}
	name := store.Base(c.path)
	existing, exists := parent.children[name]
	if c.typ == store.TypeFolder {
		if exists {
			if existing.typ != store.TypeFolder {
				return nil, fmt.Errorf("%w: %s is not a folder", store.ErrConflict, c.path)
			}
			return events, nil
		}
		parent.children[name] = newFolder(now)
		return append(events, store.Event{Op: store.OpAdded, Path: store.Clean(c.path)}), nil
	}
	if exists && existing.typ == store.TypeFolder {
		return nil, fmt.Errorf("%w: %s is a folder", store.ErrConflict, c.path)
	}
	meta := c.meta
	if meta.Modified.IsZero() {
		meta.Modified = now
	}
	parent.children[name] = &node{
		typ:   c.typ,
		data:  slices.Clone(c.data),
		props: maps.Clone(c.props),
		meta:  meta,
	}
	op := store.OpAdded
	if exists {
		op = store.OpChanged
	}
	return append(events, store.Event{Op: op, Path: store.Clean(c.path)}), nil
}

func remove(root *node, p string) []store.Event {
	names := split(p)
	if len(names) == 0 {
		return nil
	}
	parent, ok := lookup(root, store.Parent(p))
	if !ok || parent.children == nil {
		return nil
	}
	target, ok := parent.children[names[len(names)-1]]
	if !ok {
		return nil
	}
	delete(parent.children, names[len(names)-1])
	return removedEvents(store.Clean(p), target, nil)
}

// removedEvents lists removals for n and its subtree, deepest first.
func removedEvents(p string, n *node, events []store.Event) []store.Event {
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		events = removedEvents(p+"/"+name, n.children[name], events)
	}
	return append(events, store.Event{Op: store.OpRemoved, Path: p})
}

func move(root *node, from, to string, now time.Time) ([]store.Event, error) {
	src, ok := lookup(root, from)
	if !ok || len(split(from)) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, from)
	}
	if _, exists := lookup(root, to); exists {
		return nil, fmt.Errorf("%w: %s already exists", store.ErrConflict, to)
	}
	if store.Within(to, from) {
		return nil, fmt.Errorf("%w: cannot move %s below itself", store.ErrConflict, from)
	}
	var events []store.Event
	parent, err := mkdirs(root, to, now, &events)
	if err != nil {
		return nil, err
	}
	oldParent, _ := lookup(root, store.Parent(from))
	delete(oldParent.children, store.Base(from))
	parent.children[store.Base(to)] = src
	return append(events, store.Event{Op: store.OpMoved, Path: store.Clean(to), From: store.Clean(from)}), nil
}

// MkdirAll creates a folder and its missing ancestors.
func (r *Repository) MkdirAll(p string) error {
	return r.apply(external, []change{{op: store.OpAdded, path: p, typ: store.TypeFolder}})
}

// PutFile creates or replaces a file node.
func (r *Repository) PutFile(p string, data []byte) error {
	return r.apply(external, []change{{op: store.OpAdded, path: p, typ: store.TypeFile, data: data}})
}

// PutConfig creates or replaces a config node.
func (r *Repository) PutConfig(p string, props map[string]any) error {
	return r.apply(external, []change{{op: store.OpAdded, path: p, typ: store.TypeConfig, props: props}})
}

// Remove deletes a node and its subtree.
func (r *Repository) Remove(p string) error {
	return r.apply(external, []change{{op: store.OpRemoved, path: p}})
}

// Move renames a node.
func (r *Repository) Move(from, to string) error {
	return r.apply(external, []change{{op: store.OpMoved, path: to, from: from}})
}
