package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/writeback"
)

func init() {
	DisableColor()
}

func TestDetect(t *testing.T) {
	t.Setenv(EnvOutput, "")
	tests := []struct {
		json, table, compact bool
		env                  string
		want                 Format
	}{
		{want: FormatTable},
		{json: true, compact: true, want: FormatJSON},
		{compact: true, table: true, want: FormatCompact},
		{env: "json", want: FormatJSON},
		{env: "oneline", want: FormatCompact},
		{table: true, env: "json", want: FormatTable},
	}
	for _, tt := range tests {
		t.Setenv(EnvOutput, tt.env)
		if got := Detect(tt.json, tt.table, tt.compact); got != tt.want {
			t.Errorf("Detect(%v,%v,%v) with env %q = %v, want %v", tt.json, tt.table, tt.compact, tt.env, got, tt.want)
		}
	}
}

func TestJSONError(t *testing.T) {
	var buf bytes.Buffer
	JSONError(&buf, "CONFIG_NOT_FOUND", "missing", map[string]any{"dir": "/x"})
	out := buf.String()
	if !strings.Contains(out, `"code": "CONFIG_NOT_FOUND"`) || !strings.Contains(out, `"dir": "/x"`) {
		t.Fatalf("unexpected error envelope:\n%s", out)
	}
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	StatusDetail(&buf, installer.Status{
		Running:  true,
		Roots:    []filter.WatchRoot{{Path: "/apps", Priority: 200}, {Path: "/libs", Priority: 100}},
		Counters: installer.Counters{ScanFolders: 3, UpdateFoldersList: 2, RunLoop: 7},
		Folders:  []installer.FolderStatus{{Path: "/apps/x/install", Priority: 200, Resources: 2, NeedsScan: true}},
	})
	out := buf.String()
	for _, want := range []string{"installwatch running", "/apps:200, /libs:100", "/apps/x/install", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	ResourceTable(&buf, []resource.Resource{{ID: "/apps/x/install/a.jar", Type: resource.TypeBundle, Priority: 200, Digest: "abc"}})
	if !strings.Contains(buf.String(), "/apps/x/install/a.jar") || !strings.Contains(buf.String(), "bundle") {
		t.Errorf("unexpected resource table:\n%s", buf.String())
	}

	buf.Reset()
	JournalTable(&buf, []journal.Entry{{Timestamp: time.Now(), Action: journal.ActionAdd, ID: "/apps/a.jar", Priority: 200}})
	if !strings.Contains(buf.String(), "add") {
		t.Errorf("unexpected journal table:\n%s", buf.String())
	}
}

func TestCompactForms(t *testing.T) {
	var buf bytes.Buffer
	ClassificationCompact(&buf, filter.Classification{Path: "/apps/install.author", Root: "/apps", Priority: 200, RunModes: []string{"author"}, Matched: true})
	WritebackCompact(&buf, "pid", &writeback.Result{URL: "installwatch:/apps/sling/install/pid.cfg.json", ResourceIsMoved: true})
	WritebackCompact(&buf, "other", nil)
	want := "/apps/install.author [200] root:/apps modes:author\n" +
		"pid -> installwatch:/apps/sling/install/pid.cfg.json moved\n" +
		"other not handled\n"
	if buf.String() != want {
		t.Errorf("compact output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	if got := truncate("/apps/very/long/path", 10); got != "...ng/path" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("/short", 10); got != "/short" {
		t.Errorf("truncate = %q", got)
	}
}

func TestNodeReport(t *testing.T) {
	md := NodeReport(
		store.Node{Path: "/apps/install/a.cfg.yaml", Type: store.TypeConfig},
		filter.Classification{Path: "/apps/install", Root: "/apps", Priority: 200, Matched: true},
		&resource.Resource{URL: "installwatch:/apps/install/a.cfg.yaml", Type: resource.TypeConfig, Digest: "d", Properties: map[string]any{"b": 2, "a": 1}},
	)
	if !strings.Contains(md, "priority **200**") || strings.Index(md, "| a |") > strings.Index(md, "| b |") {
		t.Errorf("unexpected report:\n%s", md)
	}

	var buf bytes.Buffer
	if err := Markdown(&buf, md, 80); err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(buf.String(), "/apps/install/a.cfg.yaml") {
		t.Errorf("rendered markdown lost the title:\n%s", buf.String())
	}
}
