// Package filter decides which folders of the store are watched and with
// what priority. A folder qualifies when it lives under a configured root and
// its path matches the folder-name pattern, either directly or after
// stripping a suffix of run-mode labels that are all active.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// NotMatched is the priority of a path that must not be watched.
const NotMatched = -1

// DefaultRootPriority is used for search-path entries without an explicit priority.
const DefaultRootPriority = 1

// ErrInvalid is returned for unusable filter settings.
var ErrInvalid = errors.New("invalid folder filter")

// WatchRoot is a root path with the priority of the resources found beneath it.
type WatchRoot struct {
	Path     string `json:"path" yaml:"path"`
	Priority int    `json:"priority" yaml:"priority"`
}

// String renders the root in its "path:priority" form.
func (r WatchRoot) String() string {
	return r.Path + ":" + strconv.Itoa(r.Priority)
}

// ParseRoots parses "path:priority" entries. Entries without a priority get
// DefaultRootPriority.
func ParseRoots(entries []string) ([]WatchRoot, error) {
	roots := make([]WatchRoot, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, prio := entry, DefaultRootPriority
		if i := strings.LastIndex(entry, ":"); i >= 0 {
			n, err := strconv.Atoi(strings.TrimSpace(entry[i+1:]))
			if err != nil {
				return nil, fmt.Errorf("%w: search path %q: priority %q is not a number", ErrInvalid, entry, entry[i+1:])
			}
			path, prio = entry[:i], n
		}
		roots = append(roots, WatchRoot{Path: normalizeRoot(path), Priority: prio})
	}
	return roots, nil
}

func normalizeRoot(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// FolderNameFilter classifies store paths. It is immutable after New and
// safe for concurrent use.
type FolderNameFilter struct {
	roots    []WatchRoot
	pattern  *regexp.Regexp
	runModes map[string]struct{}
}

// New builds a filter. Roots are ordered by descending priority, so the
// first root is the primary write target and the last one the system root.
func New(roots []WatchRoot, pattern string, runModes []string) (*FolderNameFilter, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: at least one search path is required", ErrInvalid)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: folder name pattern %q: %w", ErrInvalid, pattern, err)
	}

	ordered := make([]WatchRoot, len(roots))
	for i, r := range roots {
		ordered[i] = WatchRoot{Path: normalizeRoot(r.Path), Priority: r.Priority}
	}
	seenPath := make(map[string]bool, len(ordered))
	seenPrio := make(map[int]bool, len(ordered))
	for _, r := range ordered {
		if seenPath[r.Path] {
			return nil, fmt.Errorf("%w: duplicate search path %q", ErrInvalid, r.Path)
		}
		if seenPrio[r.Priority] {
			return nil, fmt.Errorf("%w: duplicate search path priority %d", ErrInvalid, r.Priority)
		}
		seenPath[r.Path] = true
		seenPrio[r.Priority] = true
	}
	slices.SortStableFunc(ordered, func(a, b WatchRoot) int { return b.Priority - a.Priority })

	modes := make(map[string]struct{}, len(runModes))
	for _, m := range runModes {
		if m = strings.TrimSpace(m); m != "" {
			modes[m] = struct{}{}
		}
	}
	return &FolderNameFilter{roots: ordered, pattern: re, runModes: modes}, nil
}

// Classification explains how a path was classified.
type Classification struct {
	Path     string   `json:"path"`
	Root     string   `json:"root,omitempty"`
	Priority int      `json:"priority"`
	RunModes []string `json:"run_modes,omitempty"`
	Matched  bool     `json:"matched"`
}

// Classify reports the owning root, the run-mode labels consumed and the
// resulting priority of path.
func (f *FolderNameFilter) Classify(path string) Classification {
	c := Classification{Path: path, Priority: NotMatched}

	root, ok := f.rootFor(path)
	if !ok {
		return c
	}
	c.Root = root.Path

	if f.pattern.MatchString(path) {
		c.Priority, c.Matched = root.Priority, true
		return c
	}

	// Strip ".label" suffixes from the last segment, innermost label last,
	// until the remaining prefix matches.
	lastSlash := strings.LastIndex(path, "/")
	prefix := path
	var labels []string
	for {
		dot := strings.LastIndex(prefix, ".")
		if dot <= lastSlash {
			return c
		}
		labels = append(labels, prefix[dot+1:])
		prefix = prefix[:dot]
		if f.pattern.MatchString(prefix) {
			break
		}
	}
	slices.Reverse(labels)
	c.RunModes = labels
	for _, label := range labels {
		if _, active := f.runModes[label]; !active || label == "" {
			return c
		}
	}
	c.Priority, c.Matched = root.Priority, true
	return c
}

// Priority returns the priority of path, or NotMatched.
func (f *FolderNameFilter) Priority(path string) int {
	return f.Classify(path).Priority
}

// rootFor returns the longest root that is path or an ancestor of it.
func (f *FolderNameFilter) rootFor(path string) (WatchRoot, bool) {
	var best WatchRoot
	found := false
	for _, r := range f.roots {
		if !IsUnder(path, r.Path) {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}

// Roots returns the roots in priority order.
func (f *FolderNameFilter) Roots() []WatchRoot {
	return slices.Clone(f.roots)
}

// RootPaths returns the root paths in priority order.
func (f *FolderNameFilter) RootPaths() []string {
	paths := make([]string, len(f.roots))
	for i, r := range f.roots {
		paths[i] = r.Path
	}
	return paths
}

// RunModes returns the active run modes, sorted.
func (f *FolderNameFilter) RunModes() []string {
	modes := make([]string, 0, len(f.runModes))
	for m := range f.runModes {
		modes = append(modes, m)
	}
	slices.Sort(modes)
	return modes
}

// Pattern returns the folder-name pattern source.
func (f *FolderNameFilter) Pattern() string {
	return f.pattern.String()
}

// IsUnder reports whether path equals root or lies beneath it.
func IsUnder(path, root string) bool {
	if root == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == root || strings.HasPrefix(path, root+"/")
}
