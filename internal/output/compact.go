package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/writeback"
)

// FolderCompact renders watched folders one per line.
func FolderCompact(w io.Writer, folders []installer.FolderStatus) {
	if len(folders) == 0 {
		fmt.Fprintln(os.Stderr, "No watched folders found.")
		return
	}
	for _, f := range folders {
		line := f.Path + " [" + strconv.Itoa(f.Priority) + "] " + strconv.Itoa(f.Resources) + " resources"
		if f.NeedsScan {
			line += " (scan pending)"
		}
		fmt.Fprintln(w, line)
	}
}

// ResourceCompact renders resources one per line.
func ResourceCompact(w io.Writer, resources []resource.Resource) {
	if len(resources) == 0 {
		fmt.Fprintln(os.Stderr, "No resources found.")
		return
	}
	for _, r := range resources {
		fmt.Fprintln(w, r.URL+" ["+r.Type+"/"+strconv.Itoa(r.Priority)+"] "+r.Digest)
	}
}

// StatusCompact renders the engine status as a header line plus folders.
func StatusCompact(w io.Writer, s installer.Status) {
	roots := make([]string, len(s.Roots))
	for i, r := range s.Roots {
		roots[i] = r.Path + ":" + strconv.Itoa(r.Priority)
	}
	line := fmt.Sprintf("roots=%s scans=%d discovery=%d cycles=%d",
		strings.Join(roots, ","), s.Counters.ScanFolders, s.Counters.UpdateFoldersList, s.Counters.RunLoop)
	if s.Paused {
		line += " paused"
	}
	fmt.Fprintln(w, line)
	FolderCompact(w, s.Folders)
}

// ClassificationCompact renders a classification on one line.
func ClassificationCompact(w io.Writer, c filter.Classification) {
	if !c.Matched {
		fmt.Fprintln(w, c.Path+" not watched")
		return
	}
	line := c.Path + " [" + strconv.Itoa(c.Priority) + "] root:" + c.Root
	if len(c.RunModes) > 0 {
		line += " modes:" + strings.Join(c.RunModes, ",")
	}
	fmt.Fprintln(w, line)
}

// WritebackCompact renders a writeback outcome on one line.
func WritebackCompact(w io.Writer, id string, r *writeback.Result) {
	if r == nil {
		fmt.Fprintln(w, id+" not handled")
		return
	}
	line := id + " -> " + r.URL
	if r.Priority != 0 {
		line += " [" + strconv.Itoa(r.Priority) + "]"
	}
	if r.ResourceIsMoved {
		line += " moved"
	}
	fmt.Fprintln(w, line)
}

// JournalCompact renders journal entries one per line.
func JournalCompact(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "Journal is empty.")
		return
	}
	for _, e := range entries {
		line := e.Timestamp.Local().Format(timeLayout) + " " + e.Action + " " + e.ID
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
}
