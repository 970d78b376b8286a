package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

type fakeEngine struct {
	status  installer.Status
	rescans int
}

func (f *fakeEngine) Status() installer.Status { return f.status }
func (f *fakeEngine) ScheduleRescan()          { f.rescans++ }

func newTestDashboard() (*Dashboard, *fakeEngine) {
	eng := &fakeEngine{status: installer.Status{
		Running: true,
		Roots:   []filter.WatchRoot{{Path: "/apps", Priority: 200}},
		Folders: []installer.FolderStatus{
			{Path: "/apps/a/install", Priority: 200, Resources: 1},
			{Path: "/apps/b/install", Priority: 200, Resources: 0, NeedsScan: true},
		},
	}}
	d := NewDashboard(Options{
		Engine: eng,
		Resources: func() []resource.Resource {
			return []resource.Resource{{ID: "/apps/a/install/x.jar", Type: resource.TypeBundle, Digest: "d1"}}
		},
		Recent: []logging.LogEntry{{Timestamp: time.Now(), Level: logging.LevelInfo, Message: "engine started"}},
	})
	d.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return d, eng
}

func press(d *Dashboard, k string) {
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func TestDashboardNavigationAndRescan(t *testing.T) {
	d, eng := newTestDashboard()

	if d.SelectedFolder() != "/apps/a/install" {
		t.Fatalf("expected first folder selected, got %q", d.SelectedFolder())
	}
	press(d, "j")
	press(d, "j")
	if d.SelectedFolder() != "/apps/b/install" {
		t.Fatalf("selection should stop at the last folder, got %q", d.SelectedFolder())
	}
	press(d, "k")
	if d.SelectedFolder() != "/apps/a/install" {
		t.Fatalf("expected first folder after k, got %q", d.SelectedFolder())
	}

	press(d, "r")
	if eng.rescans != 1 {
		t.Fatalf("expected one rescan, got %d", eng.rescans)
	}

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
}

func TestDashboardView(t *testing.T) {
	d, eng := newTestDashboard()
	d.Update(LogMsg{Entry: logging.LogEntry{Timestamp: time.Now(), Level: logging.LevelWarning, Message: "scan failed", Context: map[string]string{"folder": "/apps/b/install"}}})

	view := d.View()
	for _, want := range []string{"installwatch", "/apps/a/install", "x.jar", "engine started", "scan failed", "folder=/apps/b/install"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	eng.status.Paused = true
	d.Update(TickMsg{})
	if !strings.Contains(d.View(), "paused") {
		t.Error("paused state not shown after refresh")
	}
}

func TestDashboardKeepsLogBounded(t *testing.T) {
	d, _ := newTestDashboard()
	for range maxLogLines + 10 {
		d.Update(LogMsg{Entry: logging.LogEntry{Message: "x"}})
	}
	if len(d.lines) != maxLogLines {
		t.Fatalf("expected %d log lines, got %d", maxLogLines, len(d.lines))
	}
}
