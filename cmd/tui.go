package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/twiced-technology-gmbh/installwatch/internal/tui"
)

func runDashboard(ctx context.Context, rt *runtime) error {
	logs, unsubscribe := rt.logger.Subscribe()
	defer unsubscribe()

	model := tui.NewDashboard(tui.Options{
		Engine:    rt.engine,
		Resources: rt.resources,
		Recent:    rt.logger.Buffer().List(),
		Logs:      logs,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil // interrupted
	}
	return err
}
