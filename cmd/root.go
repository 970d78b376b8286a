// Package cmd implements the installwatch CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

// version is set at build time via ldflags.
var version = "dev"

// Global flags.
var (
	flagJSON    bool
	flagTable   bool
	flagCompact bool
	flagDir     string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "installwatch",
	Short: "Watch install folders and report installable resources",
	Long: `installwatch watches a resource tree for install folders, reports the
bundles and configurations they contain to an installer, and writes
configurations changed by the installer back into the tree.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A missing .env file is normal.
		_ = godotenv.Load()
		if flagNoColor || !output.ColorSupported() {
			output.DisableColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagTable, "table", false, "output as table")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "compact", false, "compact one-line-per-record output (alias --oneline)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "path to installwatch directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable color output")
	rootCmd.SetGlobalNormalizationFunc(normalizeFlag)
}

// flagAliases maps alternative flag spellings to their canonical name.
var flagAliases = map[string]string{
	"oneline":  "compact",
	"run-mode": "run-modes",
	"nocolor":  "no-color",
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ReplaceAll(name, "_", "-")
	if canonical, ok := flagAliases[name]; ok {
		name = canonical
	}
	return pflag.NormalizedName(name)
}

// Execute runs the root command.
func Execute() {
	_, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	// Handle SilentError: exit with code, no output.
	var silent *clierr.SilentError
	if errors.As(err, &silent) {
		os.Exit(silent.Code)
	}

	jsonMode := flagJSON
	if !jsonMode {
		jsonMode = os.Getenv(output.EnvOutput) == "json"
	}

	if jsonMode {
		var cliErr *clierr.Error
		if errors.As(err, &cliErr) {
			output.JSONError(os.Stdout, cliErr.Code, cliErr.Message, cliErr.Details)
			os.Exit(cliErr.ExitCode())
		}
		// Unknown error: report as INTERNAL_ERROR.
		output.JSONError(os.Stdout, clierr.InternalError, err.Error(), nil)
		os.Exit(2) //nolint:mnd // exit code 2 for internal errors
	}

	fmt.Fprintln(os.Stderr, err)
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		os.Exit(cliErr.ExitCode())
	}
	os.Exit(1)
}

// resolveDir returns the absolute path to the installwatch directory.
func resolveDir() (string, error) {
	if flagDir != "" {
		return filepath.Abs(flagDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return config.FindDir(cwd)
}

// loadConfig finds and loads the installwatch config.
func loadConfig() (*config.Config, error) {
	return loadWith(config.Load)
}

func loadWith(load func(string) (*config.Config, error)) (*config.Config, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, err
	}
	cfg, err := load(dir)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, config.ErrNotFound):
		return nil, clierr.New(clierr.ConfigNotFound, err.Error()).WithDetails(map[string]any{"dir": dir})
	case errors.Is(err, config.ErrInvalid):
		return nil, clierr.New(clierr.ConfigInvalid, err.Error())
	default:
		return nil, err
	}
}

// outputFormat returns the detected output format from flags/env.
func outputFormat() output.Format {
	return output.Detect(flagJSON, flagTable, flagCompact)
}

// newLogger builds the logger for long-running commands. In quiet mode
// nothing goes to stderr; the log file still receives every line.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, func(), error) {
	var writers []io.Writer
	if !quiet {
		writers = append(writers, os.Stderr)
	}
	closeFn := func() {}
	if path := cfg.LogPath(); path != "" {
		const dirMode = 0o750
		if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // path from config
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, f)
		closeFn = func() { _ = f.Close() }
	}
	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel(), io.MultiWriter(writers...))
	return logger, func() {
		logger.Close()
		closeFn()
	}, nil
}
