package installer

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
	"github.com/twiced-technology-gmbh/installwatch/internal/store/memstore"
)

type fakeInstaller struct {
	mu         sync.Mutex
	registered []resource.Resource
	added      []resource.Resource
	removed    []string
	updates    int
}

func (f *fakeInstaller) RegisterResources(_ string, rs []resource.Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, rs...)
}

func (f *fakeInstaller) UpdateResources(_ string, add []resource.Resource, remove []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, add...)
	f.removed = append(f.removed, remove...)
	f.updates++
}

func (f *fakeInstaller) addedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.added))
	for i, r := range f.added {
		out[i] = r.ID
	}
	return out
}

func (f *fakeInstaller) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.removed)
}

func testSettings() Settings {
	s := DefaultSettings()
	s.LoopDelay = 5 * time.Millisecond
	s.RescanDelay = 10 * time.Millisecond
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// activated returns an engine whose config and session are set up without
// a worker, so cycles can be driven one at a time.
func activated(t *testing.T, repo *memstore.Repository, inst *fakeInstaller, s Settings) *Engine {
	t.Helper()
	e := NewEngine(repo, inst, s, logging.Discard())
	if err := e.activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(func() {
		closeAll(e.listeners)
		e.cfg.Close()
		_ = e.session.Close()
	})
	return e
}

func TestNormalizeNewConfigPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"sling/install", "/apps/sling/install/"},
		{"sling/install/", "/apps/sling/install/"},
		{"/custom/config", "/custom/config/"},
		{"/custom/config/", "/custom/config/"},
	}
	for _, tt := range tests {
		if got := normalizeNewConfigPath(tt.in, "/apps"); got != tt.want {
			t.Errorf("normalizeNewConfigPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	cfg, err := NewConfig(DefaultSettings(), logging.Discard())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.NewConfigPath() != "/apps/sling/install/" {
		t.Fatalf("unexpected new config path %q", cfg.NewConfigPath())
	}
	if !slices.Equal(cfg.Roots(), []string{"/apps", "/libs"}) {
		t.Fatalf("unexpected roots %v", cfg.Roots())
	}
}

func TestFindPathsToWatchRespectsDepth(t *testing.T) {
	repo := memstore.New()
	for _, p := range []string{
		"/apps/install",
		"/apps/a/install",
		"/apps/a/b/install",
		"/apps/a/b/c/install",
		"/apps/a/b/install/config",
	} {
		_ = repo.MkdirAll(p)
	}
	e := activated(t, repo, &fakeInstaller{}, testSettings())

	var got []string
	for _, f := range e.cfg.WatchedFolders() {
		got = append(got, f.Path())
	}
	want := []string{"/apps/a/b/install", "/apps/a/install", "/apps/install"}
	if !slices.Equal(got, want) {
		t.Fatalf("watched %v, want %v", got, want)
	}
}

func TestFindPathsToWatchIgnoresMissingRootAndDedupes(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps/x/install")
	e := activated(t, repo, &fakeInstaller{}, testSettings())

	for range 3 {
		if _, err := e.cfg.UpdateFoldersList(e.session); err != nil {
			t.Fatalf("UpdateFoldersList: %v", err)
		}
	}
	if n := len(e.cfg.WatchedFolders()); n != 1 {
		t.Fatalf("expected one watched folder, got %d", n)
	}
}

func TestActivationRegistersExistingResources(t *testing.T) {
	repo := memstore.New()
	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	_ = repo.PutFile("/libs/y/config/b.cfg.json", []byte("{}"))
	inst := &fakeInstaller{}
	activated(t, repo, inst, testSettings())

	if len(inst.registered) != 2 {
		t.Fatalf("expected 2 registered resources, got %+v", inst.registered)
	}
	prio := map[string]int{}
	for _, r := range inst.registered {
		prio[r.ID] = r.Priority
	}
	if prio["/apps/x/install/a.jar"] != 200 || prio["/libs/y/config/b.cfg.json"] != 100 {
		t.Fatalf("unexpected priorities %v", prio)
	}
}

func TestCycleReportsChangesOnce(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps/x/install")
	inst := &fakeInstaller{}
	e := activated(t, repo, inst, testSettings())
	e.runOneCycle(e.cfg, e.session)

	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	e.runOneCycle(e.cfg, e.session)
	e.runOneCycle(e.cfg, e.session)
	if got := inst.addedIDs(); !slices.Equal(got, []string{"/apps/x/install/a.jar"}) {
		t.Fatalf("unexpected adds %v", got)
	}

	_ = repo.Remove("/apps/x/install/a.jar")
	e.runOneCycle(e.cfg, e.session)
	if got := inst.removedIDs(); !slices.Equal(got, []string{"/apps/x/install/a.jar"}) {
		t.Fatalf("unexpected removes %v", got)
	}
	if c := e.Counters(); c.ScanFolders < 2 || c.UpdateFoldersList < 2 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestCycleReportsRemovedFolderContents(t *testing.T) {
	repo := memstore.New()
	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	_ = repo.PutFile("/apps/x/install/b.jar", []byte("b"))
	inst := &fakeInstaller{}
	e := activated(t, repo, inst, testSettings())
	e.runOneCycle(e.cfg, e.session)

	_ = repo.Remove("/apps/x")
	e.runOneCycle(e.cfg, e.session)
	e.runOneCycle(e.cfg, e.session)

	want := []string{"/apps/x/install/a.jar", "/apps/x/install/b.jar"}
	if got := inst.removedIDs(); !slices.Equal(got, want) {
		t.Fatalf("removed %v, want %v", got, want)
	}
	if e.cfg.IsWatched("/apps/x/install") {
		t.Fatalf("removed folder is still watched")
	}
}

func TestCycleDiscoversNewFoldersAfterRescanWindow(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps")
	inst := &fakeInstaller{}
	e := activated(t, repo, inst, testSettings())

	_ = repo.PutFile("/apps/new/install/a.jar", []byte("a"))
	if !e.timer.Pending() {
		t.Fatalf("root listener should have scheduled a rescan")
	}
	time.Sleep(e.timer.Delay())
	e.runOneCycle(e.cfg, e.session)
	if !e.cfg.IsWatched("/apps/new/install") {
		t.Fatalf("new folder not discovered")
	}
	e.runOneCycle(e.cfg, e.session)
	if got := inst.addedIDs(); !slices.Equal(got, []string{"/apps/new/install/a.jar"}) {
		t.Fatalf("unexpected adds %v", got)
	}
}

// countingSession records Refresh calls on top of a real session.
type countingSession struct {
	store.Session
	refreshes int
}

func (s *countingSession) Refresh() error {
	s.refreshes++
	return s.Session.Refresh()
}

func TestRediscoveryRefreshesSession(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps")
	e := activated(t, repo, &fakeInstaller{}, testSettings())
	sess := &countingSession{Session: e.session}

	e.runOneCycle(e.cfg, sess)
	if sess.refreshes != 0 {
		t.Fatalf("idle cycle refreshed the session %d times", sess.refreshes)
	}

	_ = repo.MkdirAll("/apps/new")
	if !e.timer.Pending() {
		t.Fatalf("root listener should have scheduled a rescan")
	}
	time.Sleep(e.timer.Delay())
	e.runOneCycle(e.cfg, sess)
	if sess.refreshes != 1 {
		t.Fatalf("expected one refresh before rediscovery, got %d", sess.refreshes)
	}
}

func TestRootCreatedLaterIsWatched(t *testing.T) {
	repo := memstore.New()
	inst := &fakeInstaller{}
	e := activated(t, repo, inst, testSettings())

	_ = repo.MkdirAll("/libs/z/install")
	if !e.timer.Pending() {
		t.Fatalf("tree root listener should have scheduled a rescan")
	}
	time.Sleep(e.timer.Delay())
	e.runOneCycle(e.cfg, e.session)
	if !e.cfg.IsWatched("/libs/z/install") {
		t.Fatalf("folder under late root not discovered")
	}
}

func TestPauseSignalHoldsScanning(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps/x/install")
	inst := &fakeInstaller{}
	e := activated(t, repo, inst, testSettings())
	e.runOneCycle(e.cfg, e.session)

	_ = repo.MkdirAll(DefaultPausePath + "/deployment")
	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	if paused := e.runOneCycle(e.cfg, e.session); !paused {
		t.Fatalf("expected paused cycle")
	}
	if len(inst.addedIDs()) != 0 {
		t.Fatalf("nothing may be reported while paused")
	}
	if !e.Status().Paused {
		t.Fatalf("status should report pause")
	}

	_ = repo.Remove(DefaultPausePath + "/deployment")
	if paused := e.runOneCycle(e.cfg, e.session); paused {
		t.Fatalf("empty signal node must not pause")
	}
	if got := inst.addedIDs(); !slices.Equal(got, []string{"/apps/x/install/a.jar"}) {
		t.Fatalf("unexpected adds %v", got)
	}
}

func TestEngineStartStop(t *testing.T) {
	repo := memstore.New()
	_ = repo.MkdirAll("/apps/x/install")
	inst := &fakeInstaller{}
	e := NewEngine(repo, inst, testSettings(), logging.Discard())

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background()); err != ErrRunning {
		t.Fatalf("expected ErrRunning, got %v", err)
	}

	_ = repo.PutFile("/apps/x/install/a.jar", []byte("a"))
	waitFor(t, "resource added", func() bool { return len(inst.addedIDs()) == 1 })
	waitFor(t, "loop progress", func() bool { return e.Counters().RunLoop > 1 })

	st := e.Status()
	if !st.Running || len(st.Folders) != 1 || st.Folders[0].Resources != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	e.Stop()
	if e.Config() != nil {
		t.Fatalf("config must be released on stop")
	}
	if got := e.Counters().RunLoop; got != -1 {
		t.Fatalf("expected run loop counter -1, got %d", got)
	}
	e.Stop()

	_ = repo.PutFile("/apps/x/install/b.jar", []byte("b"))
	time.Sleep(20 * time.Millisecond)
	if n := len(inst.addedIDs()); n != 1 {
		t.Fatalf("stopped engine reported changes: %d", n)
	}
}

func TestEngineStopsWithContext(t *testing.T) {
	repo := memstore.New()
	e := NewEngine(repo, &fakeInstaller{}, testSettings(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := e.Done()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop on context cancel")
	}
	e.Stop()
}
