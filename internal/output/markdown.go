package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

const defaultWrap = 100

var colorDisabled bool

// Markdown renders md for the terminal. Styling follows the terminal
// background unless color is disabled.
func Markdown(w io.Writer, md string, width int) error {
	if width <= 0 {
		width = defaultWrap
	}
	style := glamour.WithAutoStyle()
	if colorDisabled {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// NodeReport describes a store node: how its folder is classified and, when
// it converts to a resource, what the installer would receive.
func NodeReport(node store.Node, folder filter.Classification, res *resource.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", node.Path)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Type | %s |\n", node.Type)
	if !node.Modified.IsZero() {
		fmt.Fprintf(&b, "| Modified | %s |\n", node.Modified.Local().Format(timeLayout))
	}
	if node.Type == store.TypeFile {
		fmt.Fprintf(&b, "| Size | %d |\n", node.Size)
		if node.MimeType != "" {
			fmt.Fprintf(&b, "| MIME type | `%s` |\n", node.MimeType)
		}
		if node.Encoding != "" {
			fmt.Fprintf(&b, "| Encoding | %s |\n", node.Encoding)
		}
	}

	b.WriteString("\n## Folder\n\n")
	if folder.Matched {
		fmt.Fprintf(&b, "`%s` is watched under root `%s` with priority **%d**.\n", folder.Path, folder.Root, folder.Priority)
		if len(folder.RunModes) > 0 {
			fmt.Fprintf(&b, "\nRequires run modes: %s.\n", strings.Join(folder.RunModes, ", "))
		}
	} else {
		fmt.Fprintf(&b, "`%s` is not a watched folder.\n", folder.Path)
	}

	b.WriteString("\n## Resource\n\n")
	if res == nil {
		b.WriteString("Not installable.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- URL: `%s`\n- Type: %s\n- Digest: `%s`\n", res.URL, res.Type, res.Digest)
	if len(res.Properties) > 0 {
		b.WriteString("\n| Property | Value |\n|---|---|\n")
		keys := make([]string, 0, len(res.Properties))
		for k := range res.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | `%v` |\n", k, res.Properties[k])
		}
	}
	return b.String()
}
