package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify the installwatch configuration",
	Long:  `View the full configuration, get a specific key, or set a writable value.`,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a configuration value. List values take a comma-separated string.
Environment overrides are not written to the file.`,
	Args: cobra.ExactArgs(2), //nolint:mnd // key and value
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// configAccessor describes how to get and set a config key.
type configAccessor struct {
	get      func(*config.Config) any
	set      func(*config.Config, string) error
	writable bool
}

func stringAccessor(field func(*config.Config) *string) configAccessor {
	return configAccessor{
		get:      func(c *config.Config) any { return *field(c) },
		set:      func(c *config.Config, v string) error { *field(c) = v; return nil },
		writable: true,
	}
}

func listAccessor(field func(*config.Config) *[]string) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any {
			if *field(c) == nil {
				return []string{}
			}
			return *field(c)
		},
		set:      func(c *config.Config, v string) error { *field(c) = config.SplitList(v); return nil },
		writable: true,
	}
}

func boolAccessor(key string, field func(*config.Config) *bool) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return clierr.Newf(clierr.InvalidInput, "invalid %s %q: must be true or false", key, v)
			}
			*field(c) = b
			return nil
		},
		writable: true,
	}
}

func intAccessor(key string, field func(*config.Config) *int) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return clierr.Newf(clierr.InvalidInput, "invalid %s %q: must be an integer", key, v)
			}
			*field(c) = n
			return nil // validation handles range check
		},
		writable: true,
	}
}

func configAccessors() map[string]configAccessor {
	return map[string]configAccessor{
		"version": {
			get: func(c *config.Config) any { return c.Version },
		},
		"store.dir": stringAccessor(func(c *config.Config) *string { return &c.Store.Dir }),
		"installer.writeback": boolAccessor("installer.writeback",
			func(c *config.Config) *bool { return &c.Installer.WriteBack }),
		"installer.folder_name_regexp": stringAccessor(
			func(c *config.Config) *string { return &c.Installer.FolderNameRegexp }),
		"installer.max_depth": intAccessor("installer.max_depth",
			func(c *config.Config) *int { return &c.Installer.MaxDepth }),
		"installer.new_config_path": stringAccessor(
			func(c *config.Config) *string { return &c.Installer.NewConfigPath }),
		"installer.search_path": listAccessor(
			func(c *config.Config) *[]string { return &c.Installer.SearchPath }),
		"installer.signal_path": stringAccessor(
			func(c *config.Config) *string { return &c.Installer.SignalPath }),
		"installer.run_modes": listAccessor(
			func(c *config.Config) *[]string { return &c.Installer.RunModes }),
		"installer.loop_delay": stringAccessor(
			func(c *config.Config) *string { return &c.Installer.LoopDelay }),
		"installer.rescan_delay": stringAccessor(
			func(c *config.Config) *string { return &c.Installer.RescanDelay }),
		"installer.digest_cache_size": intAccessor("installer.digest_cache_size",
			func(c *config.Config) *int { return &c.Installer.DigestCacheSize }),
		"sink.journal": boolAccessor("sink.journal",
			func(c *config.Config) *bool { return &c.Sink.Journal }),
		"sink.webhook_url":   stringAccessor(func(c *config.Config) *string { return &c.Sink.WebhookURL }),
		"sink.webhook_token": stringAccessor(func(c *config.Config) *string { return &c.Sink.WebhookToken }),
		"log.level":          stringAccessor(func(c *config.Config) *string { return &c.Log.Level }),
		"log.file":           stringAccessor(func(c *config.Config) *string { return &c.Log.File }),
	}
}

// allConfigKeys returns config keys in display order.
func allConfigKeys() []string {
	return []string{
		"version",
		"store.dir",
		"installer.writeback",
		"installer.folder_name_regexp",
		"installer.max_depth",
		"installer.new_config_path",
		"installer.search_path",
		"installer.signal_path",
		"installer.run_modes",
		"installer.loop_delay",
		"installer.rescan_delay",
		"installer.digest_cache_size",
		"sink.journal",
		"sink.webhook_url",
		"sink.webhook_token",
		"log.level",
		"log.file",
	}
}

// secretKeys are masked in listings.
var secretKeys = map[string]bool{"sink.webhook_token": true}

func displayValue(key string, val any) any {
	if secretKeys[key] {
		if s, _ := val.(string); s != "" {
			return "********"
		}
	}
	return val
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	accessors := configAccessors()

	if outputFormat() == output.FormatJSON {
		m := make(map[string]any, len(accessors))
		for _, key := range allConfigKeys() {
			m[key] = displayValue(key, accessors[key].get(cfg))
		}
		return output.JSON(os.Stdout, m)
	}

	// Table mode: key-value pairs.
	for _, key := range allConfigKeys() {
		val := displayValue(key, accessors[key].get(cfg))
		fmt.Fprintf(os.Stdout, "%-30s %v\n", key, formatConfigValue(val))
	}
	return nil
}

func runConfigGet(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key := args[0]
	acc, ok := configAccessors()[key]
	if !ok {
		return clierr.Newf(clierr.InvalidInput, "unknown config key %q", key)
	}

	val := acc.get(cfg)

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, val)
	}

	fmt.Fprintln(os.Stdout, formatConfigValue(val))
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	cfg, err := loadWith(config.LoadForEdit)
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	acc, ok := configAccessors()[key]
	if !ok {
		return clierr.Newf(clierr.InvalidInput, "unknown config key %q", key)
	}
	if !acc.writable {
		return clierr.Newf(clierr.InvalidInput, "config key %q is read-only", key)
	}

	if err := acc.set(cfg, value); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return clierr.New(clierr.InvalidInput, err.Error())
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	shown := displayValue(key, acc.get(cfg))
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{"key": key, "value": shown})
	}

	output.Messagef(os.Stdout, "Set %s = %v", key, formatConfigValue(shown))
	return nil
}

func formatConfigValue(val any) string {
	switch v := val.(type) {
	case []string:
		if len(v) == 0 {
			return "--"
		}
		return strings.Join(v, ", ")
	case string:
		if v == "" {
			return "--"
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
