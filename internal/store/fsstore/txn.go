package fsstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/twiced-technology-gmbh/installwatch/internal/filelock"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

type op struct {
	remove bool
	path   string
	data   []byte
	meta   store.FileMeta
}

type txn struct {
	session *session
	ops     []op
	done    bool
}

func (t *txn) WriteFile(p string, data []byte, meta store.FileMeta) error {
	if t.done {
		return store.ErrClosed
	}
	if hiddenPath(p) || store.Clean(p) == "/" {
		return fmt.Errorf("%w: cannot write %s", store.ErrConflict, p)
	}
	t.ops = append(t.ops, op{path: store.Clean(p), data: data, meta: meta})
	return nil
}

func (t *txn) Remove(p string) error {
	if t.done {
		return store.ErrClosed
	}
	if store.Clean(p) == "/" {
		return fmt.Errorf("%w: cannot remove the root folder", store.ErrConflict)
	}
	t.ops = append(t.ops, op{remove: true, path: store.Clean(p)})
	return nil
}

func (t *txn) Rollback() {
	t.done = true
	t.ops = nil
}

// Commit applies the staged changes under the store lock. Every write is
// checked against the tree and its content staged in a hidden folder before
// the first change is applied, so a rejected commit leaves the tree as it was.
func (t *txn) Commit() error {
	if t.done {
		return store.ErrClosed
	}
	if err := t.session.check(); err != nil {
		return err
	}
	t.done = true
	r := t.session.repo

	unlock, err := filelock.Lock(filepath.Join(r.dir, LockName))
	if err != nil {
		return fmt.Errorf("locking store: %w", err)
	}
	defer func() { _ = unlock() }()

	if err := r.checkWrites(t.ops); err != nil {
		return err
	}

	staged := make(map[int]string, len(t.ops))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for i, o := range t.ops {
		if o.remove {
			continue
		}
		tmp, err := r.stage(o)
		if err != nil {
			cleanup()
			return err
		}
		staged[i] = tmp
	}

	var paths, subtrees []string
	for i, o := range t.ops {
		target := r.osPath(o.path)
		if o.remove {
			if err := os.RemoveAll(target); err != nil {
				cleanup()
				return fmt.Errorf("removing %s: %w", o.path, err)
			}
			subtrees = append(subtrees, o.path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
			cleanup()
			return fmt.Errorf("creating folders for %s: %w", o.path, err)
		}
		if err := os.Rename(staged[i], target); err != nil {
			cleanup()
			return fmt.Errorf("writing %s: %w", o.path, err)
		}
		delete(staged, i)
		if !o.meta.Modified.IsZero() {
			if err := os.Chtimes(target, o.meta.Modified, o.meta.Modified); err != nil {
				r.logger.Debug("modification time not stored", map[string]string{"path": o.path, "error": err.Error()})
			}
		}
		if err := writeMeta(target, o.meta); err != nil {
			r.logger.Debug("file metadata not stored", map[string]string{"path": o.path, "error": err.Error()})
		}
		paths = append(paths, o.path)
		paths = append(paths, store.Ancestors(o.path)...)
	}
	r.markLocal(t.session.id, paths, subtrees)
	return nil
}

// checkWrites rejects writes onto a folder or below a file. A node removed
// earlier in the same transaction does not count.
func (r *Repository) checkWrites(ops []op) error {
	for i, o := range ops {
		if o.remove {
			continue
		}
		removed := func(p string) bool {
			for _, prev := range ops[:i] {
				if prev.remove && store.Within(p, prev.path) {
					return true
				}
			}
			return false
		}
		if info, err := os.Stat(r.osPath(o.path)); err == nil && info.IsDir() && !removed(o.path) {
			return fmt.Errorf("%w: %s is a folder", store.ErrConflict, o.path)
		}
		for _, a := range store.Ancestors(o.path) {
			info, err := os.Stat(r.osPath(a))
			if err == nil && !info.IsDir() && !removed(a) {
				return fmt.Errorf("%w: parent of %s is not a folder", store.ErrConflict, o.path)
			}
		}
	}
	return nil
}

// stage writes the content of o to a temporary file in the hidden staging
// folder at the store root.
func (r *Repository) stage(o op) (string, error) {
	dir := filepath.Join(r.dir, stagingDir)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("creating staging folder: %w", err)
	}
	f, err := os.CreateTemp(dir, store.Base(o.path)+"-*")
	if err != nil {
		return "", fmt.Errorf("staging %s: %w", o.path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(o.data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("staging %s: %w", o.path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("staging %s: %w", o.path, err)
	}
	if err := os.Chmod(tmp, fileMode); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("staging %s: %w", o.path, err)
	}
	return tmp, nil
}
