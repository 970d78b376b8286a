package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/installwatch/internal/clierr"
	"github.com/twiced-technology-gmbh/installwatch/internal/config"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
)

const serviceName = "installwatch"

// program adapts the runtime to the service manager.
type program struct {
	cfg    *config.Config
	rt     *runtime
	cancel context.CancelFunc
}

// Start implements service.Interface. It must not block.
func (p *program) Start(_ service.Service) error {
	rt, err := newRuntime(p.cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := rt.start(ctx); err != nil {
		cancel()
		rt.close()
		return err
	}
	p.rt, p.cancel = rt, cancel
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.rt != nil {
		p.rt.close()
	}
	return nil
}

func serviceConfig(dir string) *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "installwatch",
		Description: "Watches install folders and reports installable resources.",
		Arguments:   []string{"run", "--dir", dir},
	}
}

func newService(cfg *config.Config) (service.Service, error) {
	s, err := service.New(&program{cfg: cfg}, serviceConfig(cfg.Dir()))
	if err != nil {
		return nil, clierr.Wrap(clierr.ServiceFailed, err, "creating service")
	}
	return s, nil
}

// runAsService hands control to the service manager.
func runAsService(cfg *config.Config) error {
	s, err := newService(cfg)
	if err != nil {
		return err
	}
	return s.Run()
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the installwatch system service",
}

var serviceActions = []struct {
	use   string
	short string
	run   func(service.Service) error
	done  string
}{
	{"install", "Install the system service", func(s service.Service) error { return s.Install() }, "installed"},
	{"uninstall", "Remove the system service", func(s service.Service) error { return s.Uninstall() }, "uninstalled"},
	{"start", "Start the system service", func(s service.Service) error { return s.Start() }, "started"},
	{"stop", "Stop the system service", func(s service.Service) error { return s.Stop() }, "stopped"},
}

func init() {
	for _, a := range serviceActions {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   a.use,
			Short: a.short,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runServiceAction(a.run, a.done)
			},
		})
	}
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the system service status",
		Args:  cobra.NoArgs,
		RunE:  runServiceStatus,
	})
	rootCmd.AddCommand(serviceCmd)
}

func runServiceAction(action func(service.Service) error, done string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := action(s); err != nil {
		return clierr.Wrap(clierr.ServiceFailed, err, "service "+done)
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]string{"service": serviceName, "status": done})
	}
	output.Messagef(os.Stdout, "Service %s %s", serviceName, done)
	return nil
}

func runServiceStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newService(cfg)
	if err != nil {
		return err
	}

	st, err := s.Status()
	status := statusName(st)
	if errors.Is(err, service.ErrNotInstalled) {
		status = "not installed"
	} else if err != nil {
		return clierr.Wrap(clierr.ServiceFailed, err, "querying service")
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]string{"service": serviceName, "status": status, "dir": cfg.Dir()})
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", serviceName, status)
	return nil
}

func statusName(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
