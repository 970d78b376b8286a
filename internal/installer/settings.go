// Package installer keeps the set of watched folders in line with the store
// and runs the background loop that reports resource changes.
package installer

import (
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/rescan"
)

// Defaults for Settings fields left empty.
const (
	DefaultFolderNamePattern = `.*/(install|config)$`
	DefaultMaxDepth          = 4
	DefaultNewConfigPath     = "sling/install"
	DefaultPausePath         = "/system/sling/installer/jcr/pauseInstallation"
	DefaultLoopDelay         = 500 * time.Millisecond
)

// DefaultSearchPath lists the roots watched when none are configured.
var DefaultSearchPath = []string{"/libs:100", "/apps:200"}

// Settings configures an engine.
type Settings struct {
	WriteBack             bool
	FolderNamePattern     string
	MaxWatchedFolderDepth int
	NewConfigPath         string
	SearchPath            []string
	PauseScanNodePath     string
	RunModes              []string
	LoopDelay             time.Duration
	RescanDelay           time.Duration
	DigestCacheSize       int
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings() Settings {
	return Settings{
		WriteBack:             true,
		FolderNamePattern:     DefaultFolderNamePattern,
		MaxWatchedFolderDepth: DefaultMaxDepth,
		NewConfigPath:         DefaultNewConfigPath,
		SearchPath:            append([]string(nil), DefaultSearchPath...),
		PauseScanNodePath:     DefaultPausePath,
		LoopDelay:             DefaultLoopDelay,
		RescanDelay:           rescan.DefaultDelay,
	}
}

// withDefaults fills zero-valued fields. WriteBack is taken as given.
func (s Settings) withDefaults() Settings {
	if s.FolderNamePattern == "" {
		s.FolderNamePattern = DefaultFolderNamePattern
	}
	if s.MaxWatchedFolderDepth <= 0 {
		s.MaxWatchedFolderDepth = DefaultMaxDepth
	}
	if s.NewConfigPath == "" {
		s.NewConfigPath = DefaultNewConfigPath
	}
	if len(s.SearchPath) == 0 {
		s.SearchPath = append([]string(nil), DefaultSearchPath...)
	}
	if s.PauseScanNodePath == "" {
		s.PauseScanNodePath = DefaultPausePath
	}
	if s.LoopDelay <= 0 {
		s.LoopDelay = DefaultLoopDelay
	}
	if s.RescanDelay <= 0 {
		s.RescanDelay = rescan.DefaultDelay
	}
	return s
}
