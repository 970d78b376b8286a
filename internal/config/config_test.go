package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
)

func TestInitAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	cfg, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := os.Stat(cfg.StorePath()); err != nil {
		t.Fatalf("store directory not created: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dir() != cfg.Dir() || !loaded.Installer.WriteBack || !loaded.Sink.Journal {
		t.Fatalf("unexpected loaded config %+v", loaded)
	}

	s := loaded.InstallerSettings()
	if s.LoopDelay != 500*time.Millisecond || s.RescanDelay != time.Second {
		t.Errorf("unexpected delays %v %v", s.LoopDelay, s.RescanDelay)
	}
	if len(s.SearchPath) != 2 || s.MaxWatchedFolderDepth != 4 {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadMigratesV1(t *testing.T) {
	dir := t.TempDir()
	v1 := `version: 1
store:
  dir: tree
installer:
  writeback: false
  folder_name_regexp: ".*/install$"
  max_depth: 3
  new_config_path: sling/install
  search_path: ["/libs:100", "/apps:200"]
  signal_path: /system/pause
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(v1), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != CurrentVersion || !cfg.Sink.Journal || cfg.Installer.LoopDelay != DefaultLoopDelay || cfg.Log.Level != DefaultLogLevel {
		t.Fatalf("migration incomplete: %+v", cfg)
	}
	if cfg.Installer.WriteBack {
		t.Error("migration must keep writeback as configured")
	}

	data, _ := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if !strings.Contains(string(data), "version: 2") {
		t.Errorf("migrated config not persisted:\n%s", data)
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 99\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"bad regexp", func(c *Config) { c.Installer.FolderNameRegexp = "([" }, "folder_name_regexp"},
		{"zero depth", func(c *Config) { c.Installer.MaxDepth = 0 }, "max_depth"},
		{"no roots", func(c *Config) { c.Installer.SearchPath = nil }, "search_path"},
		{"duplicate priority", func(c *Config) { c.Installer.SearchPath = []string{"/a:1", "/b:1"} }, "search_path"},
		{"bad delay", func(c *Config) { c.Installer.LoopDelay = "soon" }, "loop_delay"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"no store", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected ErrInvalid mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRunModes:     "author, dev,,",
		EnvStoreDir:     "/srv/tree",
		EnvLogLevel:     "debug",
		EnvWebhookURL:   "http://localhost/hook",
		EnvWebhookToken: "t0k",
	}
	cfg := NewDefault()
	cfg.SetDir("/etc/installwatch")
	applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if got := strings.Join(cfg.Installer.RunModes, "|"); got != "author|dev" {
		t.Errorf("run modes = %q", got)
	}
	if cfg.StorePath() != "/srv/tree" {
		t.Errorf("store path = %q", cfg.StorePath())
	}
	if cfg.LogLevel() != logging.LevelDebug {
		t.Errorf("log level = %q", cfg.LogLevel())
	}
	if cfg.Sink.WebhookURL != "http://localhost/hook" || cfg.Sink.WebhookToken != "t0k" {
		t.Errorf("webhook = %+v", cfg.Sink)
	}
}

func TestFindDir(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(filepath.Join(root, DefaultDir)); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}

	found, err := FindDir(nested)
	if err != nil {
		t.Fatalf("FindDir: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(root, DefaultDir))
	if found != want {
		t.Errorf("FindDir = %q, want %q", found, want)
	}

	inside, err := FindDir(want)
	if err != nil || inside != want {
		t.Errorf("FindDir from inside = %q, %v", inside, err)
	}

	_, err = FindDir(t.TempDir())
	var cliErr *clierr.Error
	if !errors.As(err, &cliErr) || cliErr.Code != clierr.ConfigNotFound {
		t.Errorf("expected CONFIG_NOT_FOUND, got %v", err)
	}
}

func TestInitAppliesEdits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	cfg, err := Init(dir, func(c *Config) {
		c.Installer.RunModes = []string{"author"}
		c.Installer.WriteBack = false
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	loaded, err := LoadForEdit(cfg.Dir())
	if err != nil {
		t.Fatalf("LoadForEdit: %v", err)
	}
	if loaded.Installer.WriteBack || len(loaded.Installer.RunModes) != 1 {
		t.Fatalf("edits not persisted: %+v", loaded.Installer)
	}
}

func TestInitRejectsInvalidEdits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	_, err := Init(dir, func(c *Config) { c.Installer.MaxDepth = 0 })
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Init error = %v, want ErrInvalid", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, ConfigFileName)); !os.IsNotExist(statErr) {
		t.Fatalf("config written despite invalid edit")
	}
}
