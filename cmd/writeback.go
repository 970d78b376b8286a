package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
	"golang.org/x/term"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store/fsstore"
	"github.com/twiced-technology-gmbh/installwatch/internal/writeback"
)

var writebackCmd = &cobra.Command{
	Use:   "writeback",
	Short: "Persist or remove configurations on behalf of the installer",
}

var writebackPutCmd = &cobra.Command{
	Use:   "put ID",
	Short: "Write a configuration into the store",
	Long: `Writes a configuration the installer changed into the store. Properties
come from --file (JSON or YAML) and --set key=value pairs; --set wins.
Without --url the configuration is new and lands in the new-config folder.`,
	Args: cobra.ExactArgs(1),
	RunE: runWritebackPut,
}

var writebackRmCmd = &cobra.Command{
	Use:   "rm URL",
	Short: "Remove a configuration the installer uninstalled",
	Long:  `Removes the node behind an installwatch resource URL. Prompts for confirmation in interactive mode.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWritebackRm,
}

func init() {
	writebackPutCmd.Flags().String("type", resource.TypeConfig, "resource type")
	writebackPutCmd.Flags().String("url", "", "current resource URL")
	writebackPutCmd.Flags().String("hint", "", "file name hint for new configurations")
	writebackPutCmd.Flags().StringArray("set", nil, "property as key=value (repeatable)")
	writebackPutCmd.Flags().String("file", "", "read properties from a JSON or YAML file")
	writebackPutCmd.Flags().Bool("dry-run", false, "show where the configuration would go without writing")
	writebackRmCmd.Flags().String("type", resource.TypeConfig, "resource type")
	writebackRmCmd.Flags().String("id", "", "resource id (for logging)")
	writebackRmCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompt")
	writebackCmd.AddCommand(writebackPutCmd, writebackRmCmd)
	rootCmd.AddCommand(writebackCmd)
}

// oneShotResolver builds a resolver over a configuration that lives only for
// this command. release must be called when done.
func oneShotResolver(cfg *config.Config, logger *logging.Logger) (*writeback.Resolver, func(), error) {
	if err := requireStore(cfg); err != nil {
		return nil, nil, err
	}
	repo, err := fsstore.New(cfg.StorePath(), logger)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.StoreUnavailable, err, "opening store")
	}
	icfg, err := installer.NewConfig(cfg.InstallerSettings(), logger)
	if err != nil {
		_ = repo.Close()
		return nil, nil, clierr.Wrap(clierr.ConfigInvalid, err, "installer settings")
	}
	resolver := writeback.NewResolver(repo, func() *installer.Config { return icfg }, logger)
	return resolver, func() {
		icfg.Close()
		_ = repo.Close()
	}, nil
}

func runWritebackPut(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := writeback.UpdateRequest{ID: args[0]}
	req.ResourceType, _ = cmd.Flags().GetString("type")
	req.URL, _ = cmd.Flags().GetString("url")
	if hint, _ := cmd.Flags().GetString("hint"); hint != "" {
		req.Attributes = map[string]any{resource.AttrURIHint: hint}
	}
	file, _ := cmd.Flags().GetString("file")
	pairs, _ := cmd.Flags().GetStringArray("set")
	if req.Properties, err = readProperties(file, pairs); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	resolver, release, err := oneShotResolver(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return printPlan(resolver, req)
	}

	res, err := resolver.HandleUpdate(context.Background(), req)
	if err != nil {
		return clierr.Wrap(clierr.WritebackFailed, err, "writing "+req.ID)
	}
	if res == nil {
		return notHandled(req.ID, req.URL)
	}
	detail := ""
	if res.ResourceIsMoved {
		detail = "moved"
	}
	recordJournal(cfg, logger, journal.Entry{
		Action: journal.ActionWrite, ID: req.ID, URL: res.URL,
		Type: req.ResourceType, Priority: res.Priority, Detail: detail,
	})
	return printWriteback(req.ID, res)
}

func printPlan(resolver *writeback.Resolver, req writeback.UpdateRequest) error {
	target, ok := resolver.Plan(req)
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{"handled": ok, "target": target})
	}
	if !ok {
		output.Messagef(os.Stdout, "Not handled: %s", req.ID)
		return nil
	}
	output.Messagef(os.Stdout, "Would write %s to %s", req.ID, target.Path)
	if target.Unnormalized != "" {
		output.Messagef(os.Stdout, "  and remove %s", target.Unnormalized)
	}
	return nil
}

func runWritebackRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := args[0]
	if !resource.IsOwnURL(url) {
		return clierr.Newf(clierr.InvalidInput, "not an %s resource URL: %s", resource.Scheme, url)
	}
	typ, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = url
	}

	// Require confirmation in TTY mode unless --yes.
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return clierr.New(clierr.ConfirmationReq,
				"cannot prompt for confirmation (not a terminal); use --yes")
		}
		_, path, _ := resource.SplitURL(url)
		fmt.Fprintf(os.Stderr, "Remove %s from the store? [y/N] ", path)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(os.Stderr, "Canceled.")
			return nil
		}
	}

	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	resolver, release, err := oneShotResolver(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	res, err := resolver.HandleRemoval(context.Background(), typ, id, url)
	if err != nil {
		return clierr.Wrap(clierr.WritebackFailed, err, "removing "+url)
	}
	if res == nil {
		return notHandled(id, url)
	}
	recordJournal(cfg, logger, journal.Entry{Action: journal.ActionDelete, ID: id, URL: url, Type: typ})
	return printWriteback(id, res)
}

// notHandled reports a request the resolver declined.
func notHandled(id, url string) error {
	return clierr.Newf(clierr.NotHandled, "%s was not handled", id).
		WithDetails(map[string]any{"id": id, "url": url})
}

func printWriteback(id string, res *writeback.Result) error {
	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, map[string]any{"id": id, "result": res})
	case output.FormatCompact:
		output.WritebackCompact(os.Stdout, id, res)
	default:
		output.WritebackDetail(os.Stdout, id, res)
	}
	return nil
}

// recordJournal appends e when the journal sink is enabled. Failures are
// logged; the store change already happened.
func recordJournal(cfg *config.Config, logger *logging.Logger, e journal.Entry) {
	if !cfg.Sink.Journal {
		return
	}
	if err := journal.Append(cfg.Dir(), e); err != nil {
		logger.Warn("journal append failed", logging.Err(err))
	}
}

// readProperties merges properties from file with key=value pairs. Values
// are parsed as YAML scalars so numbers and booleans keep their type.
func readProperties(file string, pairs []string) (map[string]any, error) {
	props := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file) //nolint:gosec // path from the user
		if err != nil {
			return nil, clierr.Wrap(clierr.InvalidInput, err, "reading properties")
		}
		if err := yaml.Unmarshal(data, &props); err != nil {
			return nil, clierr.Wrap(clierr.InvalidInput, err, "parsing "+file)
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, clierr.Newf(clierr.InvalidInput, "invalid property %q (expected key=value)", pair)
		}
		props[strings.TrimSpace(key)] = parseScalar(raw)
	}
	return props, nil
}

func parseScalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw
	}
	return v
}
