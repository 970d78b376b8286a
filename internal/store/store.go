// Package store defines the hierarchical resource store the engine watches.
// Paths are absolute and slash separated. Folders contain nodes; file nodes
// carry bytes, config nodes carry a property map.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("node not found")
	ErrClosed   = errors.New("session closed")
	ErrConflict = errors.New("node type conflict")
)

// NodeType tells folders, plain files and property-bearing config nodes apart.
type NodeType string

// Node types.
const (
	TypeFolder NodeType = "folder"
	TypeFile   NodeType = "file"
	TypeConfig NodeType = "config"
)

// Node describes one entry of the tree.
type Node struct {
	Path       string         `json:"path"`
	Name       string         `json:"name"`
	Type       NodeType       `json:"type"`
	Modified   time.Time      `json:"modified"`
	Size       int64          `json:"size"`
	Encoding   string         `json:"encoding,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FileMeta is written alongside file content.
type FileMeta struct {
	Modified time.Time
	Encoding string
	MimeType string
}

// Op is a bit set of change kinds.
type Op uint8

// Change kinds.
const (
	OpAdded Op = 1 << iota
	OpRemoved
	OpChanged
	OpMoved

	OpAll = OpAdded | OpRemoved | OpChanged | OpMoved
)

// Has reports whether o includes every bit of other.
func (o Op) Has(other Op) bool { return o&other == other }

// String renders the op for logs.
func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	case OpChanged:
		return "changed"
	case OpMoved:
		return "moved"
	default:
		return "mixed"
	}
}

// Event is a change notification. For moves, From holds the old path.
type Event struct {
	Op   Op
	Path string
	From string
}

// Repository hands out sessions.
type Repository interface {
	Login(ctx context.Context) (Session, error)
}

// Session is a connection to the store. A session is not safe for concurrent
// use except for Subscribe callbacks, which run on store goroutines.
type Session interface {
	// Refresh discards cached state so reads observe the latest tree.
	Refresh() error
	Exists(path string) (bool, error)
	Node(path string) (Node, error)
	// Children lists the direct children of a folder, sorted by name.
	Children(path string) ([]Node, error)
	ReadFile(path string) ([]byte, error)
	Begin() Txn
	// Subscribe calls fn for changes of the given kinds at or below path.
	// With deep unset only direct children of path are reported. Changes
	// committed through this session are never reported back to it.
	Subscribe(path string, deep bool, ops Op, fn func([]Event)) (Subscription, error)
	Close() error
}

// Txn stages changes that become visible together on Commit.
type Txn interface {
	// WriteFile creates or replaces a file node, creating missing folders.
	WriteFile(path string, data []byte, meta FileMeta) error
	// Remove deletes a node and its subtree. Missing nodes are ignored.
	Remove(path string) error
	Commit() error
	Rollback()
}

// Subscription is an active listener registration.
type Subscription interface {
	Close() error
}
