package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	if err := Append(dir,
		Entry{Action: ActionAdd, ID: "/apps/x/install/a.jar", Priority: 200},
		Entry{Action: ActionRemove, ID: "/apps/x/install/b.jar"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := Append(dir, Entry{Action: ActionRegister, ID: "/libs/y/install/c.jar"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := Read(dir, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Action != ActionAdd || entries[0].Priority != 200 || entries[0].Timestamp.IsZero() {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}

	latest, _ := Read(dir, 1)
	if len(latest) != 1 || latest[0].ID != "/libs/y/install/c.jar" {
		t.Fatalf("expected newest entry, got %+v", latest)
	}
}

func TestReadMissingJournal(t *testing.T) {
	entries, err := Read(t.TempDir(), 10)
	if err != nil || entries != nil {
		t.Fatalf("expected empty journal, got %v, %v", entries, err)
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"action":"add","id":"a"}` + "\nnot json\n" + `{"action":"remove","id":"a"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := Read(dir, 0)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v, %v", entries, err)
	}
}

func TestTruncateKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	var b strings.Builder
	for i := range maxEntries + 5 {
		fmt.Fprintf(&b, `{"action":"add","id":"%d"}`+"\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := truncate(path); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	entries, _ := Read(dir, 0)
	if len(entries) != maxEntries || entries[0].ID != "5" {
		t.Fatalf("expected %d entries starting at 5, got %d starting at %s", maxEntries, len(entries), entries[0].ID)
	}
}
