// Package fsstore maps a store.Repository onto a directory tree. Folders are
// directories, files are regular files, and files ending in .cfg.yaml or
// .cfg.yml are config nodes whose properties are the YAML document.
// Entries whose name starts with a dot are invisible to the store.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/watcher"
)

// LockName is the commit lock file kept at the top of the tree.
const LockName = ".installwatch.lock"

// stagingDir holds commit content until it is renamed into place.
const stagingDir = ".installwatch-staging"

// Config node suffixes.
var configSuffixes = []string{".cfg.yaml", ".cfg.yml"}

const (
	dirMode  = 0o750
	fileMode = 0o644

	// noLocalWindow is how long events for a path committed by a session
	// are withheld from that session's subscriptions.
	noLocalWindow = 2 * time.Second
)

// Repository serves sessions over the directory tree at Dir.
type Repository struct {
	dir      string
	logger   *logging.Logger
	debounce time.Duration

	nextSession uint64
	sessMu      sync.Mutex

	subMu   sync.Mutex
	nextSub uint64
	subs    map[uint64]*subscription
	watch   *watcher.Watcher
	cancel  context.CancelFunc

	localMu sync.Mutex
	local   []localChange
}

type localChange struct {
	session uint64
	path    string
	subtree bool
	at      time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithDebounce sets the delay used to coalesce file system events.
func WithDebounce(d time.Duration) Option {
	return func(r *Repository) { r.debounce = d }
}

// New returns a repository rooted at dir, creating dir if needed.
func New(dir string, logger *logging.Logger, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving store directory: %w", err)
	}
	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	r := &Repository{
		dir:      abs,
		logger:   logger.With(map[string]string{"component": "fsstore"}),
		debounce: watcher.DefaultDebounce,
		subs:     map[uint64]*subscription{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the absolute tree root.
func (r *Repository) Dir() string { return r.dir }

// Login opens a session.
func (r *Repository) Login(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.sessMu.Lock()
	r.nextSession++
	id := r.nextSession
	r.sessMu.Unlock()
	return &session{repo: r, id: id}, nil
}

// Close stops the file system watcher. Open sessions keep working for reads.
func (r *Repository) Close() error {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.stopWatchLocked()
}

func (r *Repository) stopWatchLocked() error {
	if r.watch == nil {
		return nil
	}
	r.cancel()
	err := r.watch.Close()
	r.watch, r.cancel = nil, nil
	return err
}

// osPath converts a store path to a file system path.
func (r *Repository) osPath(p string) string {
	return filepath.Join(r.dir, filepath.FromSlash(strings.TrimPrefix(store.Clean(p), "/")))
}

// storePath converts a file system path below dir to a store path.
func (r *Repository) storePath(p string) (string, bool) {
	rel, err := filepath.Rel(r.dir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return store.Clean(filepath.ToSlash(rel)), true
}

// hiddenPath reports whether any segment of a store path starts with a dot.
func hiddenPath(p string) bool {
	for _, seg := range strings.Split(strings.Trim(store.Clean(p), "/"), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func isConfigName(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range configSuffixes {
		if strings.HasSuffix(lower, s) && len(lower) > len(s) {
			return true
		}
	}
	return false
}

// node builds the store view of a file system entry.
func (r *Repository) node(p string, info os.FileInfo) store.Node {
	n := store.Node{
		Path:     store.Clean(p),
		Name:     store.Base(p),
		Modified: info.ModTime(),
	}
	if n.Path == "/" {
		n.Name = ""
	}
	if info.IsDir() {
		n.Type = store.TypeFolder
		return n
	}
	n.Type = store.TypeFile
	n.Size = info.Size()

	osPath := r.osPath(p)
	if isConfigName(n.Name) {
		props, err := readProperties(osPath)
		if err == nil {
			n.Type = store.TypeConfig
			n.Properties = props
			return n
		}
		r.logger.Warn("unreadable config node", map[string]string{"path": n.Path, "error": err.Error()})
	}
	n.Encoding, n.MimeType = readMeta(osPath, n.Name)
	return n
}

func readProperties(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path below the store root
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("parsing properties: %w", err)
	}
	return props, nil
}

func (r *Repository) stat(p string) (os.FileInfo, error) {
	if hiddenPath(p) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	info, err := os.Stat(r.osPath(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, p)
	}
	return info, err
}

// markLocal records paths committed by a session.
func (r *Repository) markLocal(session uint64, paths []string, subtrees []string) {
	now := time.Now()
	r.localMu.Lock()
	defer r.localMu.Unlock()
	r.pruneLocked(now)
	for _, p := range paths {
		r.local = append(r.local, localChange{session: session, path: p, at: now})
	}
	for _, p := range subtrees {
		r.local = append(r.local, localChange{session: session, path: p, subtree: true, at: now})
	}
}

func (r *Repository) pruneLocked(now time.Time) {
	kept := r.local[:0]
	for _, c := range r.local {
		if now.Sub(c.at) < noLocalWindow {
			kept = append(kept, c)
		}
	}
	r.local = kept
}

// committedBy returns the session that recently committed p, or zero.
func (r *Repository) committedBy(p string) uint64 {
	r.localMu.Lock()
	defer r.localMu.Unlock()
	r.pruneLocked(time.Now())
	for i := len(r.local) - 1; i >= 0; i-- {
		c := r.local[i]
		if c.path == p || (c.subtree && store.Within(p, c.path)) {
			return c.session
		}
	}
	return 0
}
