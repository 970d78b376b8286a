package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watcher until interrupted",
	Long: `Discovers the watched folders, reports their resources and keeps
reporting changes until interrupted. With --json every delta is written
to stdout as one JSON line. When started by the service manager the same
command runs as a system service.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("tui", false, "show the live dashboard")
	runCmd.Flags().StringSlice("run-modes", nil, "active run modes (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !service.Interactive() {
		return runAsService(cfg)
	}

	withTUI, _ := cmd.Flags().GetBool("tui")
	return runForeground(cfg, runModesFlag(cmd), withTUI)
}

func runForeground(cfg *config.Config, runModes []string, withTUI bool) error {
	if err := requireStore(cfg); err != nil {
		return err
	}
	opts := runtimeOptions{quiet: withTUI, runModes: runModes}
	jsonMode := outputFormat() == output.FormatJSON
	if jsonMode && !withTUI {
		opts.stream = os.Stdout
	}
	rt, err := newRuntime(cfg, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.start(ctx); err != nil {
		return err
	}

	if withTUI {
		return runDashboard(ctx, rt)
	}

	if !jsonMode {
		output.Messagef(os.Stderr, "Watching %s (Ctrl-C to stop)", cfg.StorePath())
	}
	select {
	case <-ctx.Done():
	case <-rt.engine.Done():
	}
	return nil
}
