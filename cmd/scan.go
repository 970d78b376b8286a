package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/store/fsstore"
	"github.com/twiced-technology-gmbh/installwatch/internal/watched"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the store once and list watched folders and resources",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

var classifyCmd = &cobra.Command{
	Use:   "classify PATH...",
	Short: "Show whether store paths would be watched, and with what priority",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var describeCmd = &cobra.Command{
	Use:   "describe PATH",
	Short: "Describe a store node and the resource it converts to",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	scanCmd.Flags().StringSlice("run-modes", nil, "active run modes (overrides config)")
	classifyCmd.Flags().StringSlice("run-modes", nil, "active run modes (overrides config)")
	describeCmd.Flags().Int("width", 0, "wrap width for rendered output")
	rootCmd.AddCommand(scanCmd, classifyCmd, describeCmd)
}

// runModesFlag returns the --run-modes override, or nil when not given.
func runModesFlag(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("run-modes") {
		return nil
	}
	modes, _ := cmd.Flags().GetStringSlice("run-modes")
	if modes == nil {
		modes = []string{}
	}
	return modes
}

type scanReport struct {
	Status    installer.Status    `json:"status"`
	Resources []resource.Resource `json:"resources"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireStore(cfg); err != nil {
		return err
	}

	rt, err := newRuntime(cfg, runtimeOptions{quiet: true, reportOnly: true, runModes: runModesFlag(cmd)})
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.start(context.Background()); err != nil {
		return err
	}
	report := scanReport{Status: rt.engine.Status(), Resources: rt.resources()}
	rt.engine.Stop()

	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, report)
	case output.FormatCompact:
		output.FolderCompact(os.Stdout, report.Status.Folders)
		output.ResourceCompact(os.Stdout, report.Resources)
	default:
		output.StatusDetail(os.Stdout, report.Status)
		fmt.Fprintln(os.Stdout)
		output.FolderTable(os.Stdout, report.Status.Folders)
		fmt.Fprintln(os.Stdout)
		output.ResourceTable(os.Stdout, report.Resources)
	}
	return nil
}

// folderFilter builds the filter the engine would use.
func folderFilter(settings installer.Settings) (*filter.FolderNameFilter, error) {
	roots, err := filter.ParseRoots(settings.SearchPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.ConfigInvalid, err, "search path")
	}
	f, err := filter.New(roots, settings.FolderNamePattern, settings.RunModes)
	if err != nil {
		return nil, clierr.Wrap(clierr.ConfigInvalid, err, "folder filter")
	}
	return f, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings := cfg.InstallerSettings()
	if modes := runModesFlag(cmd); modes != nil {
		settings.RunModes = modes
	}
	f, err := folderFilter(settings)
	if err != nil {
		return err
	}

	results := make([]filter.Classification, 0, len(args))
	for _, arg := range args {
		results = append(results, f.Classify(store.Clean(arg)))
	}

	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, results)
	case output.FormatCompact:
		for _, c := range results {
			output.ClassificationCompact(os.Stdout, c)
		}
	default:
		for i, c := range results {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			output.ClassificationDetail(os.Stdout, c)
		}
	}
	return nil
}

type nodeDescription struct {
	Node     store.Node            `json:"node"`
	Folder   filter.Classification `json:"folder"`
	Resource *resource.Resource    `json:"resource,omitempty"`
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireStore(cfg); err != nil {
		return err
	}
	settings := cfg.InstallerSettings()
	f, err := folderFilter(settings)
	if err != nil {
		return err
	}

	repo, err := fsstore.New(cfg.StorePath(), logging.Discard())
	if err != nil {
		return clierr.Wrap(clierr.StoreUnavailable, err, "opening store")
	}
	defer repo.Close()
	sess, err := repo.Login(context.Background())
	if err != nil {
		return clierr.Wrap(clierr.StoreUnavailable, err, "opening session")
	}
	defer sess.Close()

	p := store.Clean(args[0])
	node, err := sess.Node(p)
	if errors.Is(err, store.ErrNotFound) {
		return clierr.Newf(clierr.PathNotFound, "no node at %s", p)
	} else if err != nil {
		return clierr.Wrap(clierr.StoreUnavailable, err, "reading node")
	}

	desc := nodeDescription{Node: node}
	folder := store.Parent(p)
	if node.Type == store.TypeFolder {
		folder = p
	}
	desc.Folder = f.Classify(folder)

	if node.Type != store.TypeFolder && desc.Folder.Matched {
		res, err := convert(sess, node, desc.Folder.Priority, settings.DigestCacheSize)
		if err != nil {
			return err
		}
		desc.Resource = res
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, desc)
	}
	width, _ := cmd.Flags().GetInt("width")
	return output.Markdown(os.Stdout, output.NodeReport(desc.Node, desc.Folder, desc.Resource), width)
}

// convert runs node through the converter chain. A nil resource means no
// converter accepts the node.
func convert(sess store.Session, node store.Node, priority, cacheSize int) (*resource.Resource, error) {
	if cacheSize <= 0 {
		cacheSize = watched.DefaultCacheSize
	}
	converters, err := watched.Converters(cacheSize)
	if err != nil {
		return nil, clierr.Wrap(clierr.InternalError, err, "creating converters")
	}
	for _, c := range converters {
		if !c.Accepts(node) {
			continue
		}
		res, err := c.Convert(sess, node, priority)
		if err != nil {
			return nil, clierr.Wrap(clierr.StoreUnavailable, err, "converting "+node.Path)
		}
		return &res, nil
	}
	return nil, nil
}
