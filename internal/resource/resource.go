// Package resource defines the installable resources reported to the
// installer and the installer contract itself.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// Scheme prefixes every resource URL owned by installwatch.
const Scheme = "installwatch"

// ConfigExtension is the canonical file extension of configurations
// written back to the store.
const ConfigExtension = ".cfg.json"

// AttrURIHint names the attribute that suggests a file name for a new configuration.
const AttrURIHint = "resource.uri.hint"

// Resource types.
const (
	TypeConfig = "config"
	TypeBundle = "bundle"
	TypeFile   = "file"
)

// Resource is one installable artifact found in a watched folder.
type Resource struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Type       string         `json:"type"`
	Priority   int            `json:"priority"`
	Digest     string         `json:"digest"`
	Modified   time.Time      `json:"modified"`
	Properties map[string]any `json:"properties,omitempty"`
	Data       []byte         `json:"-"`
}

// ScanResult is the delta produced by one folder scan.
type ScanResult struct {
	ToAdd    []Resource `json:"to_add"`
	ToRemove []string   `json:"to_remove"`
}

// Empty reports whether the scan changed nothing.
func (r ScanResult) Empty() bool {
	return len(r.ToAdd) == 0 && len(r.ToRemove) == 0
}

// Installer receives resource deltas. Implementations must tolerate
// concurrent calls.
type Installer interface {
	RegisterResources(scheme string, resources []Resource)
	UpdateResources(scheme string, toAdd []Resource, toRemove []string)
}

// URL returns the resource URL for a store path.
func URL(path string) string {
	return Scheme + ":" + path
}

// SplitURL splits a resource URL at its first colon.
func SplitURL(url string) (scheme, path string, ok bool) {
	i := strings.Index(url, ":")
	if i < 0 {
		return "", "", false
	}
	return url[:i], url[i+1:], true
}

// IsOwnURL reports whether url uses Scheme.
func IsOwnURL(url string) bool {
	return strings.HasPrefix(url, Scheme+":")
}

// Digest fingerprints file content together with its modification time.
func Digest(data []byte, modified time.Time) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	_, _ = h.Write([]byte(strconv.FormatInt(modified.UnixNano(), 10)))
	return fmt.Sprintf("%016x", h.Sum64())
}

// PropertiesDigest fingerprints a property map independently of key order.
func PropertiesDigest(props map[string]any) (string, error) {
	data, err := EncodeConfig(props)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// EncodeConfig serializes configuration properties as indented JSON with
// sorted keys.
func EncodeConfig(props map[string]any) ([]byte, error) {
	if props == nil {
		props = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(props); err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	return buf.Bytes(), nil
}
