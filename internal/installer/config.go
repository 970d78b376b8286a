package installer

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/watched"
)

// Config holds the resolved settings of a running engine together with the
// set of watched folders. The folder set is guarded by one mutex; sweeps
// work on snapshots.
type Config struct {
	writeBack     bool
	filter        *filter.FolderNameFilter
	converters    []watched.Converter
	maxDepth      int
	newConfigPath string
	pausePath     string
	logger        *logging.Logger

	mu      sync.Mutex
	folders map[string]*watched.Folder
}

// NewConfig resolves settings into a Config with no watched folders.
func NewConfig(s Settings, logger *logging.Logger) (*Config, error) {
	s = s.withDefaults()

	roots, err := filter.ParseRoots(s.SearchPath)
	if err != nil {
		return nil, err
	}
	f, err := filter.New(roots, s.FolderNamePattern, s.RunModes)
	if err != nil {
		return nil, err
	}
	converters, err := watched.Converters(s.DigestCacheSize)
	if err != nil {
		return nil, err
	}

	return &Config{
		writeBack:     s.WriteBack,
		filter:        f,
		converters:    converters,
		maxDepth:      s.MaxWatchedFolderDepth,
		newConfigPath: normalizeNewConfigPath(s.NewConfigPath, f.RootPaths()[0]),
		pausePath:     store.Clean(s.PauseScanNodePath),
		logger:        logger,
		folders:       map[string]*watched.Folder{},
	}, nil
}

// normalizeNewConfigPath makes p absolute below primaryRoot when relative
// and guarantees a trailing slash.
func normalizeNewConfigPath(p, primaryRoot string) string {
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = strings.TrimSuffix(primaryRoot, "/") + "/" + p
	}
	return p
}

// Filter returns the folder name filter.
func (c *Config) Filter() *filter.FolderNameFilter { return c.filter }

// Roots returns the watch roots in priority order.
func (c *Config) Roots() []string { return c.filter.RootPaths() }

// WriteBack reports whether installer writebacks are accepted.
func (c *Config) WriteBack() bool { return c.writeBack }

// NewConfigPath returns the absolute folder, with trailing slash, where new
// configurations are written.
func (c *Config) NewConfigPath() string { return c.newConfigPath }

// PauseScanNodePath returns the path of the pause signal node.
func (c *Config) PauseScanNodePath() string { return c.pausePath }

// MaxWatchedFolderDepth returns the walk depth limit.
func (c *Config) MaxWatchedFolderDepth() int { return c.maxDepth }

// Converters returns the converter chain used for new folders.
func (c *Config) Converters() []watched.Converter { return c.converters }

// WatchedFolders returns a snapshot of the watched folders sorted by path.
func (c *Config) WatchedFolders() []*watched.Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*watched.Folder, 0, len(c.folders))
	for _, p := range slices.Sorted(maps.Keys(c.folders)) {
		out = append(out, c.folders[p])
	}
	return out
}

// IsWatched reports whether path is a watched folder.
func (c *Config) IsWatched(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.folders[store.Clean(path)]
	return ok
}

// AnyWatchedFolderNeedsScan reports whether some folder saw a change.
func (c *Config) AnyWatchedFolderNeedsScan() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.folders {
		if f.NeedsScan() {
			return true
		}
	}
	return false
}

// AddWatchedFolder registers and starts f unless its path is already
// watched. It reports whether f was added.
func (c *Config) AddWatchedFolder(f *watched.Folder) (bool, error) {
	c.mu.Lock()
	if _, ok := c.folders[f.Path()]; ok {
		c.mu.Unlock()
		return false, nil
	}
	c.folders[f.Path()] = f
	c.mu.Unlock()

	if err := f.Start(); err != nil {
		c.mu.Lock()
		delete(c.folders, f.Path())
		c.mu.Unlock()
		return false, err
	}
	c.logger.Info("watching folder", map[string]string{
		"path":     f.Path(),
		"priority": fmt.Sprint(f.Priority()),
	})
	return true, nil
}

func (c *Config) removeWatchedFolder(f *watched.Folder) {
	c.mu.Lock()
	delete(c.folders, f.Path())
	c.mu.Unlock()
	if err := f.Close(); err != nil {
		c.logger.Warn("closing watched folder", map[string]string{"path": f.Path(), "error": err.Error()})
	}
}

// FindPathsToWatch walks root and watches every qualifying folder. Folders
// deeper than the depth limit are classified but not descended into. A
// missing root is ignored.
func (c *Config) FindPathsToWatch(sess store.Session, root string) error {
	ok, err := sess.Exists(root)
	if err != nil {
		return fmt.Errorf("checking root %s: %w", root, err)
	}
	if !ok {
		c.logger.Info("watch root not found, ignored", map[string]string{"root": root})
		return nil
	}

	stack := []string{store.Clean(root)}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if prio := c.filter.Priority(p); prio > 0 && !c.IsWatched(p) {
			f := watched.New(sess, p, prio, c.converters, c.logger)
			if _, err := c.AddWatchedFolder(f); err != nil {
				return err
			}
		}
		if depth(p) > c.maxDepth {
			continue
		}

		children, err := sess.Children(p)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("walking %s: %w", p, err)
		}
		for i := len(children) - 1; i >= 0; i-- {
			if children[i].Type == store.TypeFolder {
				stack = append(stack, children[i].Path)
			}
		}
	}
	return nil
}

// depth counts path segments the way the walk limit is expressed: the
// empty segment before the leading slash included.
func depth(p string) int {
	return len(strings.Split(p, "/"))
}

// CheckForRemovedWatchedFolders drops folders whose path vanished and
// returns the ids of every resource they still held.
func (c *Config) CheckForRemovedWatchedFolders(sess store.Session) ([]string, error) {
	var removed []string
	for _, f := range c.WatchedFolders() {
		ok, err := sess.Exists(f.Path())
		if err != nil {
			return removed, fmt.Errorf("checking %s: %w", f.Path(), err)
		}
		if ok {
			continue
		}
		res, err := f.Scan()
		if err != nil {
			c.logger.Warn("final scan of removed folder failed", map[string]string{"path": f.Path(), "error": err.Error()})
			continue
		}
		removed = append(removed, res.ToRemove...)
		c.removeWatchedFolder(f)
		c.logger.Info("watched folder removed", map[string]string{
			"path":      f.Path(),
			"resources": fmt.Sprint(len(res.ToRemove)),
		})
	}
	return removed, nil
}

// UpdateFoldersList re-walks every root, then prunes vanished folders. It
// returns the ids of resources that disappeared with their folders.
func (c *Config) UpdateFoldersList(sess store.Session) ([]string, error) {
	var errs []error
	for _, root := range c.Roots() {
		if err := c.FindPathsToWatch(sess, root); err != nil {
			errs = append(errs, err)
		}
	}
	removed, err := c.CheckForRemovedWatchedFolders(sess)
	if err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// ScanWatchedFolders scans every folder and returns all resources found.
func (c *Config) ScanWatchedFolders() ([]resource.Resource, error) {
	var (
		all  []resource.Resource
		errs []error
	)
	for _, f := range c.WatchedFolders() {
		res, err := f.Scan()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, res.ToAdd...)
	}
	return all, errors.Join(errs...)
}

// Close stops every watched folder.
func (c *Config) Close() {
	for _, f := range c.WatchedFolders() {
		c.removeWatchedFolder(f)
	}
}
