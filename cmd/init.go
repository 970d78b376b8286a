package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Initialize a new installwatch directory",
	Long:  `Creates an installwatch directory with installwatch.yml and an empty store/ tree.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	initCmd.Flags().String("store", "", "store directory (defaults to store/ inside the installwatch directory)")
	initCmd.Flags().StringSlice("search-path", nil, "watch roots as path[:priority], highest priority first")
	initCmd.Flags().StringSlice("run-modes", nil, "active run modes")
	initCmd.Flags().Bool("no-writeback", false, "disable writing configurations back to the store")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := flagDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		dir = config.DefaultDir
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	// Check if already initialized.
	if _, err := os.Stat(filepath.Join(absDir, config.ConfigFileName)); err == nil {
		return clierr.Newf(clierr.ConfigExists, "installwatch already initialized in %s", absDir).
			WithDetails(map[string]any{"dir": absDir})
	}

	storeDir, _ := cmd.Flags().GetString("store")
	roots, _ := cmd.Flags().GetStringSlice("search-path")
	modes, _ := cmd.Flags().GetStringSlice("run-modes")
	noWriteback, _ := cmd.Flags().GetBool("no-writeback")

	cfg, err := config.Init(absDir, func(c *config.Config) {
		if storeDir != "" {
			c.Store.Dir = storeDir
		}
		if len(roots) > 0 {
			c.Installer.SearchPath = roots
		}
		if len(modes) > 0 {
			c.Installer.RunModes = modes
		}
		if noWriteback {
			c.Installer.WriteBack = false
		}
	})
	if errors.Is(err, config.ErrInvalid) {
		return clierr.New(clierr.InvalidInput, err.Error())
	} else if err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]string{
			"status":      "initialized",
			"dir":         absDir,
			"config":      cfg.ConfigPath(),
			"store":       cfg.StorePath(),
			"search_path": strings.Join(cfg.Installer.SearchPath, ","),
		})
	}

	output.Messagef(os.Stdout, "Initialized installwatch in %s", absDir)
	output.Messagef(os.Stdout, "  Config:      %s", cfg.ConfigPath())
	output.Messagef(os.Stdout, "  Store:       %s", cfg.StorePath())
	output.Messagef(os.Stdout, "  Search path: %s", strings.Join(cfg.Installer.SearchPath, ", "))
	output.Messagef(os.Stdout, "  Hint:        Start watching with: installwatch run")
	return nil
}
