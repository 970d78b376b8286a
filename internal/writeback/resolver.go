package writeback

import (
	"context"
	"fmt"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// Provenance is the comment line that starts every written configuration.
const Provenance = "// Configuration created by installwatch\n"

// Metadata written with every configuration.
const (
	Encoding = "UTF-8"
	MimeType = "text/plain"
)

// Result tells the installer where a handled resource now lives.
type Result struct {
	URL             string `json:"url"`
	Priority        int    `json:"priority"`
	ResourceIsMoved bool   `json:"resource_is_moved"`
}

// Resolver handles installer writebacks. Each call uses its own session.
// Both handlers return a nil Result and a nil error when the request is not
// handled here; callers treat that as a no-op.
type Resolver struct {
	repo    store.Repository
	current func() *installer.Config
	logger  *logging.Logger
	now     func() time.Time
}

// NewResolver returns a resolver. current yields the live configuration, or
// nil when the engine is not running.
func NewResolver(repo store.Repository, current func() *installer.Config, logger *logging.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		current: current,
		logger:  logger.With(map[string]string{"component": "writeback"}),
		now:     time.Now,
	}
}

// Plan resolves where req would be written without touching the store.
// ok is false when the request would be rejected.
func (r *Resolver) Plan(req UpdateRequest) (Target, bool) {
	return plan(r.current(), req)
}

func plan(cfg *installer.Config, req UpdateRequest) (Target, bool) {
	if cfg == nil || !cfg.WriteBack() || req.ResourceType != resource.TypeConfig {
		return Target{}, false
	}
	return ResolvePath(cfg.Roots()[0], cfg.NewConfigPath(), req), true
}

// HandleUpdate writes a configuration to its resolved location.
func (r *Resolver) HandleUpdate(ctx context.Context, req UpdateRequest) (*Result, error) {
	cfg := r.current()
	target, ok := plan(cfg, req)
	if !ok {
		r.logger.Debug("update not handled", map[string]string{"id": req.ID, "type": req.ResourceType})
		return nil, nil
	}

	body, err := resource.EncodeConfig(req.Properties)
	if err != nil {
		return nil, r.fail("encoding configuration", req.ID, err)
	}
	data := append([]byte(Provenance), body...)

	sess, err := r.repo.Login(ctx)
	if err != nil {
		return nil, r.fail("opening store session", req.ID, err)
	}
	defer sess.Close()

	tx := sess.Begin()
	if target.Unnormalized != "" {
		exists, err := sess.Exists(target.Unnormalized)
		if err != nil {
			tx.Rollback()
			return nil, r.fail("checking "+target.Unnormalized, req.ID, err)
		}
		if exists {
			if err := tx.Remove(target.Unnormalized); err != nil {
				tx.Rollback()
				return nil, r.fail("removing "+target.Unnormalized, req.ID, err)
			}
		}
	}
	meta := store.FileMeta{Modified: r.now(), Encoding: Encoding, MimeType: MimeType}
	if err := tx.WriteFile(target.Path, data, meta); err != nil {
		tx.Rollback()
		return nil, r.fail("writing "+target.Path, req.ID, err)
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return nil, r.fail("committing "+target.Path, req.ID, err)
	}

	res := &Result{
		URL:             resource.URL(target.Path),
		Priority:        cfg.Filter().Priority(store.Parent(target.Path)),
		ResourceIsMoved: target.Moved,
	}
	r.logger.Info("configuration written", map[string]string{
		"id":    req.ID,
		"path":  target.Path,
		"moved": fmt.Sprint(target.Moved),
	})
	return res, nil
}

// HandleRemoval deletes a resource the installer uninstalled. Resources
// under the system root or outside any watched tree are left alone.
func (r *Resolver) HandleRemoval(ctx context.Context, resourceType, id, url string) (*Result, error) {
	cfg := r.current()
	if cfg == nil || !cfg.WriteBack() || !resource.IsOwnURL(url) {
		return nil, nil
	}
	_, path, _ := resource.SplitURL(url)
	if !Removable(cfg.Filter(), path) {
		r.logger.Debug("removal not handled", map[string]string{"id": id, "url": url})
		return nil, nil
	}

	sess, err := r.repo.Login(ctx)
	if err != nil {
		return nil, r.fail("opening store session", id, err)
	}
	defer sess.Close()

	exists, err := sess.Exists(path)
	if err != nil {
		return nil, r.fail("checking "+path, id, err)
	}
	if exists {
		tx := sess.Begin()
		if err := tx.Remove(path); err != nil {
			tx.Rollback()
			return nil, r.fail("removing "+path, id, err)
		}
		if err := tx.Commit(); err != nil {
			tx.Rollback()
			return nil, r.fail("committing removal of "+path, id, err)
		}
		r.logger.Info("resource removed", map[string]string{"id": id, "type": resourceType, "path": path})
	}
	return &Result{URL: url}, nil
}

// Removable reports whether path is outside the system root and below a
// folder the filter accepts.
func Removable(f *filter.FolderNameFilter, path string) bool {
	roots := f.RootPaths()
	if filter.IsUnder(path, roots[len(roots)-1]) {
		return false
	}
	for _, ancestor := range store.Ancestors(path) {
		if f.Priority(ancestor) != filter.NotMatched {
			return true
		}
	}
	return false
}

func (r *Resolver) fail(what, id string, err error) error {
	r.logger.Error("writeback failed", map[string]string{"id": id, "step": what, "error": err.Error()})
	return fmt.Errorf("%s: %w", what, err)
}
