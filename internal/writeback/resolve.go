// Package writeback persists configurations handed back by the installer
// into the store, choosing where each configuration lives.
package writeback

import (
	"strings"

	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

// UpdateRequest describes a configuration the installer wants persisted.
// URL is empty for a configuration that has never been stored.
type UpdateRequest struct {
	ResourceType string         `json:"resource_type"`
	ID           string         `json:"id"`
	URL          string         `json:"url,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Target is a resolved write location.
type Target struct {
	// Path is the final node path, always ending in resource.ConfigExtension.
	Path string `json:"path"`
	// OldPath is the path part of the request URL; empty for first adds.
	OldPath string `json:"old_path,omitempty"`
	// Unnormalized is the path before its extension was replaced. A node
	// there is removed when the configuration is written.
	Unnormalized string `json:"unnormalized,omitempty"`
	// Moved is set when Path differs from OldPath, telling the installer to
	// replace its URL reference.
	Moved bool `json:"moved"`
}

// ResolvePath decides where a configuration is written. primaryRoot is the
// highest-priority root and newConfigPath the absolute folder, with trailing
// slash, for configurations without a previous location.
func ResolvePath(primaryRoot, newConfigPath string, req UpdateRequest) Target {
	var t Target
	var nodePath string

	switch {
	case req.URL == "":
		nodePath = newConfigPath + hintedName(req) + resource.ConfigExtension
	case resource.IsOwnURL(req.URL):
		_, t.OldPath, _ = resource.SplitURL(req.URL)
		nodePath = rebase(t.OldPath, primaryRoot)
	default:
		_, t.OldPath, _ = resource.SplitURL(req.URL)
		name := nameFromURL(req.URL, req.ID)
		nodePath = rebase(newConfigPath+name+resource.ConfigExtension, primaryRoot)
	}

	if !strings.HasSuffix(nodePath, resource.ConfigExtension) {
		t.Unnormalized = nodePath
		nodePath = swapExtension(nodePath)
	}
	t.Path = nodePath
	t.Moved = t.Path != t.OldPath
	return t
}

func hintedName(req UpdateRequest) string {
	if hint, ok := req.Attributes[resource.AttrURIHint].(string); ok && hint != "" {
		return hint
	}
	return req.ID
}

// nameFromURL takes the text between the last slash and the last dot of a
// foreign URL, falling back to id.
func nameFromURL(url, id string) string {
	slash := strings.LastIndex(url, "/")
	dot := strings.LastIndex(url, ".")
	if slash < 0 || dot < slash+2 {
		return id
	}
	return url[slash+1 : dot]
}

// rebase moves p below primaryRoot by replacing its first segment, unless
// it already lives there.
func rebase(p, primaryRoot string) string {
	prefix := strings.TrimSuffix(primaryRoot, "/") + "/"
	if strings.HasPrefix(p, prefix) {
		return p
	}
	rest := strings.TrimPrefix(p, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	return prefix + rest
}

// swapExtension replaces the last extension of the final segment with the
// canonical configuration extension.
func swapExtension(p string) string {
	dir, base := "", p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		dir, base = p[:i+1], p[i+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	return dir + base + resource.ConfigExtension
}
