package watched

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// DefaultCacheSize bounds the number of file digests kept by a FileConverter.
const DefaultCacheSize = 256

// Converter turns a child node of a watched folder into a resource.
type Converter interface {
	Name() string
	Accepts(node store.Node) bool
	Convert(sess store.Session, node store.Node, priority int) (resource.Resource, error)
}

// Converters returns the default converter chain.
func Converters(cacheSize int) ([]Converter, error) {
	files, err := NewFileConverter(cacheSize)
	if err != nil {
		return nil, err
	}
	return []Converter{ConfigConverter{}, files}, nil
}

// fileTypes maps installable file extensions to resource types. Longer
// extensions are checked first.
var fileTypes = []struct {
	ext string
	typ string
}{
	{resource.ConfigExtension, resource.TypeConfig},
	{".properties", resource.TypeConfig},
	{".config", resource.TypeConfig},
	{".cfg", resource.TypeConfig},
	{".jar", resource.TypeBundle},
	{".zip", resource.TypeFile},
}

// FileTypeOf returns the resource type for a file name, or "" when the
// file is not installable.
func FileTypeOf(name string) string {
	lower := strings.ToLower(name)
	for _, ft := range fileTypes {
		if strings.HasSuffix(lower, ft.ext) && len(lower) > len(ft.ext) {
			return ft.typ
		}
	}
	return ""
}

type cachedFile struct {
	modified time.Time
	size     int64
	digest   string
	data     []byte
}

// FileConverter reads installable files. Content and digest are cached by
// path and reused while modification time and size are unchanged.
type FileConverter struct {
	cache *lru.Cache[string, cachedFile]
}

// NewFileConverter returns a converter caching up to size files.
func NewFileConverter(size int) (*FileConverter, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedFile](size)
	if err != nil {
		return nil, fmt.Errorf("creating digest cache: %w", err)
	}
	return &FileConverter{cache: cache}, nil
}

// Name implements Converter.
func (c *FileConverter) Name() string { return "file" }

// Accepts implements Converter.
func (c *FileConverter) Accepts(node store.Node) bool {
	return node.Type == store.TypeFile && FileTypeOf(node.Name) != ""
}

// Convert implements Converter.
func (c *FileConverter) Convert(sess store.Session, node store.Node, priority int) (resource.Resource, error) {
	entry, ok := c.cache.Get(node.Path)
	if !ok || !entry.modified.Equal(node.Modified) || entry.size != node.Size {
		data, err := sess.ReadFile(node.Path)
		if err != nil {
			c.cache.Remove(node.Path)
			return resource.Resource{}, fmt.Errorf("reading %s: %w", node.Path, err)
		}
		entry = cachedFile{
			modified: node.Modified,
			size:     node.Size,
			digest:   resource.Digest(data, node.Modified),
			data:     data,
		}
		c.cache.Add(node.Path, entry)
	}
	return resource.Resource{
		ID:       node.Path,
		URL:      resource.URL(node.Path),
		Type:     FileTypeOf(node.Name),
		Priority: priority,
		Digest:   entry.digest,
		Modified: node.Modified,
		Data:     entry.data,
	}, nil
}

// CacheLen reports the number of cached files.
func (c *FileConverter) CacheLen() int { return c.cache.Len() }

// ConfigConverter reports property-bearing config nodes as configurations.
type ConfigConverter struct{}

// Name implements Converter.
func (ConfigConverter) Name() string { return "config" }

// Accepts implements Converter.
func (ConfigConverter) Accepts(node store.Node) bool {
	return node.Type == store.TypeConfig
}

// Convert implements Converter.
func (ConfigConverter) Convert(_ store.Session, node store.Node, priority int) (resource.Resource, error) {
	data, err := resource.EncodeConfig(node.Properties)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("converting %s: %w", node.Path, err)
	}
	digest, err := resource.PropertiesDigest(node.Properties)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("converting %s: %w", node.Path, err)
	}
	return resource.Resource{
		ID:         node.Path,
		URL:        resource.URL(node.Path),
		Type:       resource.TypeConfig,
		Priority:   priority,
		Digest:     digest,
		Modified:   node.Modified,
		Properties: node.Properties,
		Data:       data,
	}, nil
}
