package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

const defaultLogLimit = 50

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the journal of reported resource changes",
	Args:  cobra.NoArgs,
	RunE:  runLog,
}

func init() {
	logCmd.Flags().IntP("limit", "n", defaultLogLimit, "number of entries to show (0 for all)")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return clierr.Newf(clierr.InvalidInput, "invalid --limit %d", limit)
	}

	entries, err := journal.Read(cfg.Dir(), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, entries)
	case output.FormatCompact:
		output.JournalCompact(os.Stdout, entries)
	default:
		output.JournalTable(os.Stdout, entries)
	}
	return nil
}
