package config

import (
	"strings"
)

// Environment variables that override config values.
const (
	EnvRunModes     = "INSTALLWATCH_RUN_MODES"
	EnvStoreDir     = "INSTALLWATCH_STORE_DIR"
	EnvLogLevel     = "INSTALLWATCH_LOG_LEVEL"
	EnvWebhookURL   = "INSTALLWATCH_WEBHOOK_URL"
	EnvWebhookToken = "INSTALLWATCH_WEBHOOK_TOKEN"
)

// applyEnv overlays environment overrides. lookup is os.LookupEnv outside tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRunModes); ok {
		cfg.Installer.RunModes = SplitList(v)
	}
	if v, ok := lookup(EnvStoreDir); ok && v != "" {
		cfg.Store.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvWebhookURL); ok {
		cfg.Sink.WebhookURL = v
	}
	if v, ok := lookup(EnvWebhookToken); ok {
		cfg.Sink.WebhookToken = v
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
