package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/filelock"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/sink"
	"github.com/twiced-technology-gmbh/installwatch/internal/store/fsstore"
)

// runtime wires an engine to the file system store and the configured sinks.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	repo      *fsstore.Repository
	engine    *installer.Engine
	inventory *sink.Inventory
	webhook   *sink.Webhook
	closeLog  func()
	release   func() error
}

// instanceLockName guards against two engines reporting from one directory.
const instanceLockName = ".installwatch.run.lock"

type runtimeOptions struct {
	// quiet keeps log lines off stderr (dashboard mode).
	quiet bool
	// reportOnly skips the journal and webhook sinks (one-shot reads).
	reportOnly bool
	// runModes overrides the configured run modes when non-nil.
	runModes []string
	// stream receives every delta as a JSON line when set.
	stream io.Writer
}

func newRuntime(cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	release := func() error { return nil }
	if !opts.reportOnly {
		unlock, err := filelock.TryLock(filepath.Join(cfg.Dir(), instanceLockName))
		if errors.Is(err, filelock.ErrLocked) {
			return nil, clierr.Newf(clierr.StoreUnavailable,
				"another installwatch instance is running for %s", cfg.Dir())
		} else if err != nil {
			return nil, clierr.Wrap(clierr.StoreUnavailable, err, "locking installwatch directory")
		}
		release = unlock
	}

	logger, closeLog, err := newLogger(cfg, opts.quiet)
	if err != nil {
		_ = release()
		return nil, err
	}

	repo, err := fsstore.New(cfg.StorePath(), logger)
	if err != nil {
		closeLog()
		_ = release()
		return nil, clierr.Wrap(clierr.StoreUnavailable, err, "opening store")
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		inventory: sink.NewInventory(),
		closeLog:  closeLog,
		release:   release,
	}

	installers := sink.Multi{rt.inventory}
	if !opts.reportOnly {
		if cfg.Sink.Journal {
			installers = append(installers, sink.NewJournal(cfg.Dir(), logger))
		}
		if cfg.Sink.WebhookURL != "" {
			rt.webhook = sink.NewWebhook(cfg.Sink.WebhookURL, cfg.Sink.WebhookToken, logger)
			installers = append(installers, rt.webhook)
		}
	}
	if opts.stream != nil {
		installers = append(installers, sink.NewStream(opts.stream, logger))
	}

	settings := cfg.InstallerSettings()
	if opts.runModes != nil {
		settings.RunModes = opts.runModes
	}
	rt.engine = installer.NewEngine(repo, installers, settings, logger)
	return rt, nil
}

func (rt *runtime) start(ctx context.Context) error {
	if err := rt.engine.Start(ctx); err != nil {
		return clierr.Wrap(clierr.StoreUnavailable, err, "starting engine")
	}
	return nil
}

// resources lists what the installer currently knows.
func (rt *runtime) resources() []resource.Resource {
	return rt.inventory.List()
}

func (rt *runtime) close() {
	rt.engine.Stop()
	if rt.webhook != nil {
		rt.webhook.Wait()
	}
	if err := rt.repo.Close(); err != nil {
		rt.logger.Debug("closing store", logging.Err(err))
	}
	rt.closeLog()
	_ = rt.release()
}

// requireStore fails early when the configured store directory is missing.
func requireStore(cfg *config.Config) error {
	info, err := os.Stat(cfg.StorePath())
	if err != nil {
		return clierr.Wrap(clierr.StoreUnavailable, err, "opening store")
	}
	if !info.IsDir() {
		return clierr.Newf(clierr.StoreUnavailable, "store %s is not a directory", cfg.StorePath())
	}
	return nil
}
