package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/installer"
	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store/memstore"
)

func res(path string, prio int) resource.Resource {
	return resource.Resource{ID: path, URL: resource.URL(path), Type: resource.TypeBundle, Priority: prio, Digest: "d"}
}

func TestInventoryTracksDeltas(t *testing.T) {
	inv := NewInventory()
	inv.RegisterResources(resource.Scheme, []resource.Resource{res("/apps/install/a.jar", 200), res("/apps/install/b.jar", 200)})
	inv.UpdateResources(resource.Scheme, []resource.Resource{res("/apps/install/c.jar", 200)}, []string{"/apps/install/a.jar"})

	list := inv.List()
	if len(list) != 2 || list[0].ID != "/apps/install/b.jar" || list[1].ID != "/apps/install/c.jar" {
		t.Fatalf("unexpected inventory %+v", list)
	}

	// Registering again replaces the previous set for the scheme.
	inv.RegisterResources(resource.Scheme, []resource.Resource{res("/libs/install/d.jar", 100)})
	if inv.Len() != 1 {
		t.Fatalf("expected 1 resource after re-register, got %d", inv.Len())
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewInventory(), NewInventory()
	m := Multi{a, b}
	m.UpdateResources(resource.Scheme, []resource.Resource{res("/apps/install/a.jar", 200)}, nil)
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected both installers updated, got %d and %d", a.Len(), b.Len())
	}
}

func TestJournalSinkAppends(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, logging.Discard())
	j.RegisterResources(resource.Scheme, []resource.Resource{res("/apps/install/a.jar", 200)})
	j.UpdateResources(resource.Scheme, nil, []string{"/apps/install/a.jar"})

	entries, err := journal.Read(dir, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != journal.ActionRegister || entries[0].Priority != 200 {
		t.Errorf("unexpected register entry %+v", entries[0])
	}
	if entries[1].Action != journal.ActionRemove || entries[1].ID != "/apps/install/a.jar" ||
		entries[1].URL != resource.URL("/apps/install/a.jar") {
		t.Errorf("unexpected remove entry %+v", entries[1])
	}
}

func TestWebhookPostsPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []HookPayload
		auth     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p HookPayload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "secret", logging.Discard())
	hook.UpdateResources(resource.Scheme, []resource.Resource{res("/apps/install/a.jar", 200)}, []string{resource.URL("/apps/install/b.jar")})
	hook.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(payloads))
	}
	p := payloads[0]
	if p.Scheme != resource.Scheme || p.Action != HookUpdate || len(p.Added) != 1 || len(p.Removed) != 1 {
		t.Fatalf("unexpected payload %+v", p)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", auth)
	}
}

func TestWebhookWithoutURLIsNoop(t *testing.T) {
	hook := NewWebhook("", "", logging.Discard())
	hook.RegisterResources(resource.Scheme, nil)
	hook.Wait()
}

func TestStreamWritesOneLinePerDelta(t *testing.T) {
	var buf strings.Builder
	s := NewStream(&buf, logging.Discard())
	s.RegisterResources(resource.Scheme, []resource.Resource{res("/apps/install/a.jar", 200)})
	s.UpdateResources(resource.Scheme, nil, []string{"/apps/install/a.jar"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var first, second HookPayload
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2: %v", err)
	}
	if first.Action != HookRegister || len(first.Added) != 1 {
		t.Fatalf("first payload %+v", first)
	}
	if second.Action != HookUpdate || len(second.Added) != 0 || len(second.Removed) != 1 {
		t.Fatalf("second payload %+v", second)
	}
}

func TestInventoryFollowsRunningEngine(t *testing.T) {
	repo := memstore.New()
	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	_ = repo.PutFile("/apps/x/install/b.jar", []byte("b"))

	settings := installer.DefaultSettings()
	settings.LoopDelay = 5 * time.Millisecond
	settings.RescanDelay = 10 * time.Millisecond

	inv := NewInventory()
	e := installer.NewEngine(repo, inv, settings, logging.Discard())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	if inv.Len() != 2 {
		t.Fatalf("expected 2 registered resources, got %d", inv.Len())
	}

	_ = repo.Remove("/apps/x/install/a.jar")

	deadline := time.Now().Add(2 * time.Second)
	for inv.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	list := inv.List()
	if len(list) != 1 || list[0].ID != "/apps/x/install/b.jar" {
		t.Fatalf("removed resource still listed: %+v", list)
	}
}
