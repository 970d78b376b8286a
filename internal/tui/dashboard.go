// Package tui implements a terminal dashboard for a running installwatch engine.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// Layout constants.
const (
	keyEsc = "esc"

	tickInterval = time.Second
	maxLogLines  = 200
	headerChrome = 3 // title, counters, blank line
	footerChrome = 2 // blank line + status bar
	minPane      = 3
)

// Engine is the part of the engine the dashboard drives.
type Engine interface {
	Status() installer.Status
	ScheduleRescan()
}

// Dashboard is the top-level bubbletea model.
type Dashboard struct {
	engine    Engine
	resources func() []resource.Resource
	logs      <-chan logging.LogEntry

	status    installer.Status
	lines     []logging.LogEntry
	activeRow int
	scrollOff int
	width     int
	height    int
	notice    string
}

// Options configures a Dashboard.
type Options struct {
	Engine Engine
	// Resources lists the resources known to the installer; optional.
	Resources func() []resource.Resource
	// Recent seeds the log pane.
	Recent []logging.LogEntry
	// Logs streams new log entries; optional.
	Logs <-chan logging.LogEntry
}

// NewDashboard creates a dashboard model.
func NewDashboard(opts Options) *Dashboard {
	d := &Dashboard{
		engine:    opts.Engine,
		resources: opts.Resources,
		logs:      opts.Logs,
	}
	for _, e := range opts.Recent {
		d.appendLog(e)
	}
	d.refresh()
	return d
}

// TickMsg triggers a status refresh.
type TickMsg struct{}

// LogMsg carries one new log entry.
type LogMsg struct{ Entry logging.LogEntry }

type logsClosedMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return TickMsg{} })
}

func (d *Dashboard) waitForLog() tea.Cmd {
	if d.logs == nil {
		return nil
	}
	ch := d.logs
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return logsClosedMsg{}
		}
		return LogMsg{Entry: e}
	}
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(tickCmd(), d.waitForLog())
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.ensureVisible()
		return d, nil
	case TickMsg:
		d.refresh()
		return d, tickCmd()
	case LogMsg:
		d.appendLog(msg.Entry)
		return d, d.waitForLog()
	case logsClosedMsg:
		d.logs = nil
		return d, nil
	}
	return d, nil
}

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", keyEsc, "ctrl+c"))
	rescanKeys = key.NewBinding(key.WithKeys("r"))
	downKeys   = key.NewBinding(key.WithKeys("j", "down"))
	upKeys     = key.NewBinding(key.WithKeys("k", "up"))
)

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, quitKeys):
		return d, tea.Quit
	case key.Matches(msg, rescanKeys):
		d.engine.ScheduleRescan()
		d.notice = "rescan scheduled"
	case key.Matches(msg, downKeys):
		if d.activeRow < len(d.status.Folders)-1 {
			d.activeRow++
			d.ensureVisible()
		}
	case key.Matches(msg, upKeys):
		if d.activeRow > 0 {
			d.activeRow--
			d.ensureVisible()
		}
	}
	return d, nil
}

func (d *Dashboard) refresh() {
	d.status = d.engine.Status()
	if d.activeRow >= len(d.status.Folders) {
		d.activeRow = max(0, len(d.status.Folders)-1)
	}
	d.ensureVisible()
}

func (d *Dashboard) appendLog(e logging.LogEntry) {
	d.lines = append(d.lines, e)
	if len(d.lines) > maxLogLines {
		d.lines = d.lines[len(d.lines)-maxLogLines:]
	}
}

// SelectedFolder returns the highlighted folder path, or "".
func (d *Dashboard) SelectedFolder() string {
	if d.activeRow < len(d.status.Folders) {
		return d.status.Folders[d.activeRow].Path
	}
	return ""
}

// paneHeight splits the rows below the header between the folder list and
// the detail panes.
func (d *Dashboard) paneHeight() int {
	if d.height == 0 {
		return 10 //nolint:mnd // default before the first resize
	}
	return max(minPane, (d.height-headerChrome-footerChrome)/2) //nolint:mnd // half for folders
}

func (d *Dashboard) ensureVisible() {
	h := d.paneHeight() - 1 // header row
	if h < 1 {
		h = 1
	}
	if d.activeRow < d.scrollOff {
		d.scrollOff = d.activeRow
	}
	if d.activeRow >= d.scrollOff+h {
		d.scrollOff = d.activeRow - h + 1
	}
}

// --- Styles ---

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	activeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("237")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	pausedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	levelStyles = map[logging.Level]lipgloss.Style{
		logging.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		logging.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		logging.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		logging.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Loading..."
	}

	sections := []string{d.viewHeader(), d.viewFolders()}
	if d.resources != nil {
		sections = append(sections, d.viewResources())
	}
	sections = append(sections, d.viewLog(), "", d.viewStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (d *Dashboard) viewHeader() string {
	s := d.status
	state := "running"
	switch {
	case s.Paused:
		state = pausedStyle.Render("paused")
	case !s.Running:
		state = dimStyle.Render("stopped")
	}
	roots := make([]string, len(s.Roots))
	for i, r := range s.Roots {
		roots[i] = fmt.Sprintf("%s:%d", r.Path, r.Priority)
	}
	title := titleStyle.Render("installwatch") + " " + state + "  " + dimStyle.Render(strings.Join(roots, " "))
	counters := fmt.Sprintf("folders %d  scans %d  discovery %d  cycles %d",
		len(s.Folders), s.Counters.ScanFolders, s.Counters.UpdateFoldersList, s.Counters.RunLoop)
	if s.RescanPending {
		counters += "  " + pendingStyle.Render("rescan pending")
	}
	return truncate(title, d.width) + "\n" + truncate(counters, d.width) + "\n"
}

func (d *Dashboard) viewFolders() string {
	h := d.paneHeight()
	rows := []string{headerStyle.Render(truncate(fmt.Sprintf("%-8s %-9s %s", "PRIORITY", "RESOURCES", "FOLDER"), d.width))}
	folders := d.status.Folders
	end := min(len(folders), d.scrollOff+h-1)
	for i := d.scrollOff; i < end; i++ {
		f := folders[i]
		line := fmt.Sprintf("%8d %9d %s", f.Priority, f.Resources, f.Path)
		if f.NeedsScan {
			line += " *"
		}
		line = truncate(line, d.width)
		if i == d.activeRow {
			line = activeStyle.Render(line)
		}
		rows = append(rows, line)
	}
	if len(folders) == 0 {
		rows = append(rows, dimStyle.Render("no watched folders"))
	}
	return fitHeight(rows, h)
}

func (d *Dashboard) viewResources() string {
	h := d.paneHeight() / 2 //nolint:mnd // resources share the lower half with the log
	selected := d.SelectedFolder()
	rows := []string{headerStyle.Render(truncate("RESOURCES "+selected, d.width))}
	var matched []resource.Resource
	for _, r := range d.resources() {
		if selected != "" && store.Parent(r.ID) == selected {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].ID < matched[b].ID })
	for _, r := range matched {
		rows = append(rows, truncate(fmt.Sprintf("  %-7s %s %s", r.Type, store.Base(r.ID), dimStyle.Render(r.Digest)), d.width))
	}
	return fitHeight(rows, h)
}

func (d *Dashboard) viewLog() string {
	h := d.paneHeight()
	if d.resources != nil {
		h -= d.paneHeight() / 2 //nolint:mnd // see viewResources
	}
	rows := []string{headerStyle.Render("LOG")}
	start := max(0, len(d.lines)-(h-1))
	for _, e := range d.lines[start:] {
		level := string(e.Level)
		if st, ok := levelStyles[e.Level]; ok {
			level = st.Render(level)
		}
		rows = append(rows, truncate(e.Timestamp.Local().Format("15:04:05")+" "+level+" "+e.Message+formatFields(e.Context), d.width))
	}
	return fitHeight(rows, h)
}

func (d *Dashboard) viewStatusBar() string {
	status := " j/k:select r:rescan q:quit"
	if d.notice != "" {
		status += " | " + d.notice
	}
	return statusBarStyle.Render(truncate(status, d.width))
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" " + k + "=" + fields[k])
	}
	return dimStyle.Render(b.String())
}

// fitHeight pads or clips rows to exactly h lines.
func fitHeight(rows []string, h int) string {
	if len(rows) > h {
		rows = rows[:h]
	}
	for len(rows) < h {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 { //nolint:mnd // minimum length for truncation
		maxLen = 4
	}
	if lipgloss.Width(s) <= maxLen {
		return s
	}
	// Slice by runes to avoid breaking multi-byte UTF-8 characters.
	runes := []rune(s)
	target := maxLen - 3 //nolint:mnd // room for "..."
	if target > len(runes) {
		target = len(runes)
	}
	for target > 0 && lipgloss.Width(string(runes[:target])) > maxLen-3 {
		target--
	}
	return string(runes[:target]) + "..."
}
