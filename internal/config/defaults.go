// Package config handles installwatch configuration.
package config

import "github.com/twiced-technology-gmbh/installwatch/internal/installer"

const (
	// DefaultDir is the default installwatch directory name.
	DefaultDir = "installwatch"
	// DefaultStoreDir is the store directory, relative to the installwatch directory.
	DefaultStoreDir = "store"
	// DefaultLogLevel is the minimum level written to the log.
	DefaultLogLevel = "info"
	// DefaultLoopDelay is the pause between background loop cycles.
	DefaultLoopDelay = "500ms"
	// DefaultRescanDelay is the quiet period before folders are rediscovered.
	DefaultRescanDelay = "1s"

	// ConfigFileName is the name of the config file within the installwatch directory.
	ConfigFileName = "installwatch.yml"

	// CurrentVersion is the current config schema version.
	CurrentVersion = 2
)

// DefaultSearchPath lists the watch roots of a new config (slices cannot be const).
var DefaultSearchPath = append([]string(nil), installer.DefaultSearchPath...)
