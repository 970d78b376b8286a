package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
)

const fileMode = 0o600

// Sentinel errors.
var (
	ErrNotFound = errors.New("no installwatch config found (run 'installwatch init' to create one)")
	ErrInvalid  = errors.New("invalid config")
)

// Config represents the installwatch configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Store     StoreConfig     `yaml:"store"`
	Installer InstallerConfig `yaml:"installer"`
	Sink      SinkConfig      `yaml:"sink"`
	Log       LogConfig       `yaml:"log"`

	// dir is the absolute path to the installwatch directory (not serialized).
	dir string `yaml:"-"`
}

// StoreConfig locates the watched tree.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// InstallerConfig holds the engine settings.
type InstallerConfig struct {
	WriteBack        bool     `yaml:"writeback"`
	FolderNameRegexp string   `yaml:"folder_name_regexp"`
	MaxDepth         int      `yaml:"max_depth"`
	NewConfigPath    string   `yaml:"new_config_path"`
	SearchPath       []string `yaml:"search_path"`
	SignalPath       string   `yaml:"signal_path"`
	RunModes         []string `yaml:"run_modes,omitempty"`
	LoopDelay        string   `yaml:"loop_delay"`
	RescanDelay      string   `yaml:"rescan_delay"`
	DigestCacheSize  int      `yaml:"digest_cache_size,omitempty"`
}

// SinkConfig selects where resource deltas are reported.
type SinkConfig struct {
	Journal      bool   `yaml:"journal"`
	WebhookURL   string `yaml:"webhook_url,omitempty"`
	WebhookToken string `yaml:"webhook_token,omitempty"`
}

// LogConfig controls the log output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Dir returns the absolute path to the installwatch directory.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir sets the installwatch directory path on the config.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// ConfigPath returns the absolute path to the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.dir, ConfigFileName)
}

// StorePath returns the absolute path of the store directory. Relative
// store.dir values are resolved against the installwatch directory.
func (c *Config) StorePath() string {
	return c.resolve(c.Store.Dir)
}

// LogPath returns the absolute path of the log file, or "" when logging
// goes to stderr only.
func (c *Config) LogPath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// NewDefault creates a Config with default values.
func NewDefault() *Config {
	return &Config{
		Version: CurrentVersion,
		Store:   StoreConfig{Dir: DefaultStoreDir},
		Installer: InstallerConfig{
			WriteBack:        true,
			FolderNameRegexp: installer.DefaultFolderNamePattern,
			MaxDepth:         installer.DefaultMaxDepth,
			NewConfigPath:    installer.DefaultNewConfigPath,
			SearchPath:       append([]string{}, DefaultSearchPath...),
			SignalPath:       installer.DefaultPausePath,
			LoopDelay:        DefaultLoopDelay,
			RescanDelay:      DefaultRescanDelay,
		},
		Sink: SinkConfig{Journal: true},
		Log:  LogConfig{Level: DefaultLogLevel},
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrInvalid, c.Version, CurrentVersion)
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("%w: store.dir is required", ErrInvalid)
	}
	if err := c.validateInstaller(); err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

func (c *Config) validateInstaller() error {
	in := c.Installer
	if _, err := regexp.Compile(in.FolderNameRegexp); err != nil {
		return fmt.Errorf("%w: installer.folder_name_regexp: %w", ErrInvalid, err)
	}
	if in.MaxDepth < 1 {
		return fmt.Errorf("%w: installer.max_depth must be >= 1", ErrInvalid)
	}
	if len(in.SearchPath) == 0 {
		return fmt.Errorf("%w: installer.search_path needs at least one root", ErrInvalid)
	}
	roots, err := filter.ParseRoots(in.SearchPath)
	if err != nil {
		return fmt.Errorf("%w: installer.search_path: %w", ErrInvalid, err)
	}
	if _, err := filter.New(roots, in.FolderNameRegexp, nil); err != nil {
		return fmt.Errorf("%w: installer.search_path: %w", ErrInvalid, err)
	}
	for key, value := range map[string]string{
		"installer.loop_delay":   in.LoopDelay,
		"installer.rescan_delay": in.RescanDelay,
	} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("%w: invalid %s %q", ErrInvalid, key, value)
		}
	}
	if in.DigestCacheSize < 0 {
		return fmt.Errorf("%w: installer.digest_cache_size must be >= 0", ErrInvalid)
	}
	return nil
}

// InstallerSettings converts the installer section to engine settings.
// Durations have been validated; unparseable values fall back to defaults.
func (c *Config) InstallerSettings() installer.Settings {
	in := c.Installer
	return installer.Settings{
		WriteBack:             in.WriteBack,
		FolderNamePattern:     in.FolderNameRegexp,
		MaxWatchedFolderDepth: in.MaxDepth,
		NewConfigPath:         in.NewConfigPath,
		SearchPath:            append([]string(nil), in.SearchPath...),
		PauseScanNodePath:     in.SignalPath,
		RunModes:              append([]string(nil), in.RunModes...),
		LoopDelay:             durationOrZero(in.LoopDelay),
		RescanDelay:           durationOrZero(in.RescanDelay),
		DigestCacheSize:       in.DigestCacheSize,
	}
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	level, ok := logging.ParseLevel(c.Log.Level)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

func durationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Init creates a new installwatch directory with a default config and an
// empty store directory. Each edit is applied to the defaults before the
// result is validated and written.
func Init(dir string, edits ...func(*Config)) (*Config, error) {
	const dirMode = 0o750

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg := NewDefault()
	cfg.SetDir(absDir)
	for _, edit := range edits {
		edit(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StorePath(), dirMode); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	if err := cfg.Save(); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to its config file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(c.ConfigPath(), data, fileMode)
}

// Load reads and validates a config from the given installwatch directory.
// Environment overrides are applied after migration and before validation.
func Load(dir string) (*Config, error) {
	return load(dir, true)
}

// LoadForEdit reads a config without environment overrides, so that saving
// it never persists values that came from the environment.
func LoadForEdit(dir string) (*Config, error) {
	return load(dir, false)
}

func load(dir string, withEnv bool) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	path := filepath.Join(absDir, ConfigFileName)
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted source
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", ErrInvalid, err)
	}

	cfg.dir = absDir

	// Migrate old config versions forward before validating.
	oldVersion := cfg.Version
	if err := migrate(&cfg); err != nil {
		return nil, err
	}

	// Persist migrated config so future loads skip re-migration.
	if cfg.Version != oldVersion {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("saving migrated config: %w", err)
		}
	}

	if withEnv {
		applyEnv(&cfg, os.LookupEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindDir walks upward from startDir looking for an installwatch directory
// containing installwatch.yml. Returns the absolute path to that directory.
func FindDir(startDir string) (string, error) {
	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	dir := absStart
	for {
		candidate := filepath.Join(dir, DefaultDir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Join(dir, DefaultDir), nil
		}

		// Also check if we're inside the installwatch directory itself.
		candidate = filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", clierr.New(clierr.ConfigNotFound, ErrNotFound.Error())
		}
		dir = parent
	}
}
