package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/writeback"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().Bold(true)

	typeStyles = map[string]lipgloss.Style{
		resource.TypeConfig: lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		resource.TypeBundle: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		resource.TypeFile:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}

	actionStyles = map[string]lipgloss.Style{
		journal.ActionRegister: lipgloss.NewStyle().Foreground(lipgloss.Color("62")),
		journal.ActionAdd:      lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		journal.ActionRemove:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		journal.ActionWrite:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		journal.ActionDelete:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}

	flagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
)

// DisableColor strips all styling from table output.
func DisableColor() {
	headerStyle = lipgloss.NewStyle()
	dimStyle = lipgloss.NewStyle()
	titleStyle = lipgloss.NewStyle()
	typeStyles = map[string]lipgloss.Style{}
	actionStyles = map[string]lipgloss.Style{}
	flagStyle = lipgloss.NewStyle()
	colorDisabled = true
}

// FolderTable renders the watched folders.
func FolderTable(w io.Writer, folders []installer.FolderStatus) {
	if len(folders) == 0 {
		fmt.Fprintln(os.Stderr, "No watched folders found.")
		return
	}

	const pad = 2
	pathW := 6
	for _, f := range folders {
		pathW = max(pathW, min(len(f.Path)+pad, 70)) //nolint:mnd // max path column width
	}

	header := fmt.Sprintf("%-*s %8s %9s %s", pathW, "FOLDER", "PRIORITY", "RESOURCES", "SCAN")
	fmt.Fprintln(w, headerStyle.Render(header))
	for _, f := range folders {
		scan := dimStyle.Render("--")
		if f.NeedsScan {
			scan = flagStyle.Render("pending")
		}
		fmt.Fprintf(w, "%s %8d %9d %s\n", padRight(truncate(f.Path, pathW-pad), pathW), f.Priority, f.Resources, scan)
	}
}

// ResourceTable renders a list of resources.
func ResourceTable(w io.Writer, resources []resource.Resource) {
	if len(resources) == 0 {
		fmt.Fprintln(os.Stderr, "No resources found.")
		return
	}

	const pad = 2
	idW, typeW := 4, 6
	for _, r := range resources {
		idW = max(idW, min(len(r.ID)+pad, 70)) //nolint:mnd // max id column width
		typeW = max(typeW, len(r.Type)+pad)
	}

	header := fmt.Sprintf("%-*s %-*s %8s %-16s %s", idW, "ID", typeW, "TYPE", "PRIORITY", "DIGEST", "MODIFIED")
	fmt.Fprintln(w, headerStyle.Render(header))
	for _, r := range resources {
		fmt.Fprintf(w, "%s %s %8d %-16s %s\n",
			padRight(truncate(r.ID, idW-pad), idW),
			padRight(styledValue(r.Type, typeStyles), typeW),
			r.Priority, r.Digest, timeOrDash(r.Modified))
	}
}

// StatusDetail renders the engine status: roots, counters and folders.
func StatusDetail(w io.Writer, s installer.Status) {
	state := "stopped"
	switch {
	case s.Paused:
		state = "paused"
	case s.Running:
		state = "running"
	}
	fmt.Fprintln(w, titleStyle.Render("installwatch "+state))

	roots := make([]string, len(s.Roots))
	for i, r := range s.Roots {
		roots[i] = r.Path + ":" + strconv.Itoa(r.Priority)
	}
	printField(w, "Roots", strings.Join(roots, ", "))
	printField(w, "Scans", strconv.FormatInt(s.Counters.ScanFolders, 10))
	printField(w, "Discovery", strconv.FormatInt(s.Counters.UpdateFoldersList, 10))
	printField(w, "Cycles", strconv.FormatInt(s.Counters.RunLoop, 10))
	if s.RescanPending {
		printField(w, "Rescan", flagStyle.Render("pending"))
	}
	fmt.Fprintln(w)
	FolderTable(w, s.Folders)
}

// ClassificationDetail renders how the filter sees a folder path.
func ClassificationDetail(w io.Writer, c filter.Classification) {
	fmt.Fprintln(w, titleStyle.Render(c.Path))
	if !c.Matched {
		printField(w, "Watched", dimStyle.Render("no"))
		printField(w, "Root", stringOrDash(c.Root))
		return
	}
	printField(w, "Watched", "yes")
	printField(w, "Root", c.Root)
	printField(w, "Priority", strconv.Itoa(c.Priority))
	if len(c.RunModes) > 0 {
		printField(w, "Run modes", strings.Join(c.RunModes, ", "))
	}
}

// WritebackDetail renders the outcome of a writeback operation. A nil
// result means the request was not handled.
func WritebackDetail(w io.Writer, id string, r *writeback.Result) {
	if r == nil {
		Messagef(w, "Not handled: %s", id)
		return
	}
	fmt.Fprintln(w, titleStyle.Render(id))
	printField(w, "URL", r.URL)
	if r.Priority != 0 {
		printField(w, "Priority", strconv.Itoa(r.Priority))
	}
	if r.ResourceIsMoved {
		printField(w, "Moved", flagStyle.Render("yes"))
	}
}

// JournalTable renders journal entries, oldest first.
func JournalTable(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "Journal is empty.")
		return
	}

	const pad = 2
	actionW, idW := 8, 4
	for _, e := range entries {
		actionW = max(actionW, len(e.Action)+pad)
		idW = max(idW, min(len(e.ID)+pad, 70)) //nolint:mnd // max id column width
	}

	header := fmt.Sprintf("%-19s %-*s %-*s %8s %s", "TIME", actionW, "ACTION", idW, "ID", "PRIORITY", "DETAIL")
	fmt.Fprintln(w, headerStyle.Render(strings.TrimRight(header, " ")))
	for _, e := range entries {
		prio := dimStyle.Render("--")
		if e.Priority != 0 {
			prio = strconv.Itoa(e.Priority)
		}
		row := fmt.Sprintf("%-19s %s %s %s %s",
			e.Timestamp.Local().Format(timeLayout),
			padRight(styledValue(e.Action, actionStyles), actionW),
			padRight(truncate(e.ID, idW-pad), idW),
			padLeft(prio, 8), //nolint:mnd // priority column width
			e.Detail)
		fmt.Fprintln(w, strings.TrimRight(row, " "))
	}
}

// Messagef prints a simple formatted message line.
func Messagef(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}

// padRight pads s with spaces to the given visible width, accounting for ANSI
// escape codes that are invisible but consume bytes.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func padLeft(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return strings.Repeat(" ", width-visible) + s
}

// truncate shortens s from the left so the tail of a long path stays visible.
func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width { //nolint:mnd // room for the ellipsis
		return s
	}
	return "..." + s[len(s)-width+3:]
}

func stringOrDash(s string) string {
	if s == "" {
		return dimStyle.Render("--")
	}
	return s
}

func timeOrDash(t time.Time) string {
	if t.IsZero() {
		return dimStyle.Render("--")
	}
	return t.Local().Format(timeLayout)
}

// styledValue renders s using a matching style from the map, or returns s unchanged.
func styledValue(s string, styles map[string]lipgloss.Style) string {
	if st, ok := styles[s]; ok {
		return st.Render(s)
	}
	return s
}
