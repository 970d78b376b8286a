package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/filter"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/rescan"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

// ErrRunning is returned by Start when the engine is already running.
var ErrRunning = errors.New("engine already running")

// Counters are the engine's progress counters. RunLoop is -1 once the
// worker has stopped.
type Counters struct {
	ScanFolders       int64 `json:"scan_folders"`
	UpdateFoldersList int64 `json:"update_folders_list"`
	RunLoop           int64 `json:"run_loop"`
}

// FolderStatus describes one watched folder.
type FolderStatus struct {
	Path      string `json:"path"`
	Priority  int    `json:"priority"`
	Resources int    `json:"resources"`
	NeedsScan bool   `json:"needs_scan"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running       bool               `json:"running"`
	Paused        bool               `json:"paused"`
	RescanPending bool               `json:"rescan_pending"`
	Roots         []filter.WatchRoot `json:"roots"`
	Counters      Counters           `json:"counters"`
	Folders       []FolderStatus     `json:"folders"`
}

// Engine watches the store and reports resource changes to an installer.
// A single worker goroutine owns the scanning session; store notifications
// only flip flags.
type Engine struct {
	repo      store.Repository
	installer resource.Installer
	settings  Settings
	logger    *logging.Logger
	timer     *rescan.Timer

	mu        sync.Mutex
	cfg       *Config
	session   store.Session
	listeners []store.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	wake      chan struct{}

	active atomic.Bool
	paused atomic.Bool

	scanFolders       atomic.Int64
	updateFoldersList atomic.Int64
	runLoop           atomic.Int64
}

// NewEngine returns a stopped engine.
func NewEngine(repo store.Repository, inst resource.Installer, settings Settings, logger *logging.Logger) *Engine {
	settings = settings.withDefaults()
	return &Engine{
		repo:      repo,
		installer: inst,
		settings:  settings,
		logger:    logger.With(map[string]string{"component": "engine"}),
		timer:     rescan.NewTimer(settings.RescanDelay),
	}
}

// Start discovers the watched folders, registers their resources with the
// installer and starts the worker. The worker stops when Stop is called or
// ctx is cancelled; Stop must still be called to release resources.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		return ErrRunning
	}

	if err := e.activate(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.wake = make(chan struct{}, 1)
	e.active.Store(true)
	e.runLoop.Store(0)
	go e.run(runCtx, e.cfg, e.session, e.done)

	e.logger.Info("engine started", map[string]string{
		"roots":   strings.Join(e.cfg.Roots(), ","),
		"folders": fmt.Sprint(len(e.cfg.WatchedFolders())),
	})
	return nil
}

// activate builds the config, opens the scanning session, installs the
// listeners and performs the initial registration. Callers hold e.mu.
func (e *Engine) activate(ctx context.Context) error {
	cfg, err := NewConfig(e.settings, e.logger)
	if err != nil {
		return err
	}
	sess, err := e.repo.Login(ctx)
	if err != nil {
		return fmt.Errorf("opening store session: %w", err)
	}

	listeners, err := e.listen(sess, cfg)
	if err != nil {
		closeAll(listeners)
		_ = sess.Close()
		return err
	}

	for _, root := range cfg.Roots() {
		if err := cfg.FindPathsToWatch(sess, root); err != nil {
			cfg.Close()
			closeAll(listeners)
			_ = sess.Close()
			return err
		}
	}

	resources, err := cfg.ScanWatchedFolders()
	if err != nil {
		e.logger.Warn("initial scan incomplete", logging.Err(err))
	}
	e.installer.RegisterResources(resource.Scheme, resources)
	e.logger.Info("resources registered", map[string]string{"count": fmt.Sprint(len(resources))})

	e.cfg, e.session, e.listeners = cfg, sess, listeners
	return nil
}

// listen installs the listeners that turn tree changes into rescan requests.
func (e *Engine) listen(sess store.Session, cfg *Config) ([]store.Subscription, error) {
	var subs []store.Subscription
	schedule := func([]store.Event) { e.timer.ScheduleScan() }

	for _, root := range cfg.Roots() {
		sub, err := sess.Subscribe(root, true, store.OpAdded|store.OpRemoved, schedule)
		if err != nil {
			return subs, fmt.Errorf("listening on root %s: %w", root, err)
		}
		subs = append(subs, sub)
	}

	underRoot := func(p string) bool {
		for _, root := range cfg.Roots() {
			if filter.IsUnder(p, root) {
				return true
			}
		}
		return false
	}

	// Roots that appear or disappear themselves.
	sub, err := sess.Subscribe("/", false, store.OpAdded|store.OpRemoved, func(evs []store.Event) {
		for _, ev := range evs {
			if underRoot(ev.Path) {
				e.timer.ScheduleScan()
				return
			}
		}
	})
	if err != nil {
		return subs, fmt.Errorf("listening on tree root: %w", err)
	}
	subs = append(subs, sub)

	sub, err = sess.Subscribe("/", true, store.OpMoved, func(evs []store.Event) {
		for _, ev := range evs {
			if underRoot(ev.Path) || underRoot(ev.From) {
				e.timer.ScheduleScan()
				return
			}
		}
	})
	if err != nil {
		return subs, fmt.Errorf("listening for moves: %w", err)
	}
	return append(subs, sub), nil
}

func closeAll(subs []store.Subscription) {
	for _, s := range subs {
		_ = s.Close()
	}
}

// Stop ends the worker, waits for the current cycle to finish and releases
// listeners, folders and the scanning session.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.done == nil {
		e.mu.Unlock()
		return
	}
	e.active.Store(false)
	e.cancel()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	done := e.done
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != done {
		return
	}
	closeAll(e.listeners)
	e.cfg.Close()
	if err := e.session.Close(); err != nil {
		e.logger.Warn("closing store session", logging.Err(err))
	}
	e.cfg, e.session, e.listeners = nil, nil, nil
	e.cancel, e.done, e.wake = nil, nil, nil
	e.logger.Info("engine stopped", nil)
}

// Done is closed when the worker exits. It is nil while stopped.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Config returns the live configuration, or nil while stopped.
func (e *Engine) Config() *Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Counters returns the current counter values.
func (e *Engine) Counters() Counters {
	return Counters{
		ScanFolders:       e.scanFolders.Load(),
		UpdateFoldersList: e.updateFoldersList.Load(),
		RunLoop:           e.runLoop.Load(),
	}
}

// ScheduleRescan requests a full rediscovery of watched folders.
func (e *Engine) ScheduleRescan() {
	e.timer.ScheduleScan()
}

// Status returns a snapshot for display.
func (e *Engine) Status() Status {
	cfg := e.Config()
	st := Status{
		Running:       cfg != nil && e.active.Load(),
		Paused:        e.paused.Load(),
		RescanPending: e.timer.Pending(),
		Counters:      e.Counters(),
	}
	if cfg == nil {
		return st
	}
	st.Roots = cfg.Filter().Roots()
	for _, f := range cfg.WatchedFolders() {
		st.Folders = append(st.Folders, FolderStatus{
			Path:      f.Path(),
			Priority:  f.Priority(),
			Resources: len(f.Inventory()),
			NeedsScan: f.NeedsScan(),
		})
	}
	return st
}

func (e *Engine) run(ctx context.Context, cfg *Config, sess store.Session, done chan struct{}) {
	defer close(done)
	defer e.runLoop.Store(-1)

	for e.active.Load() && ctx.Err() == nil {
		paused := e.runOneCycle(cfg, sess)
		e.sleep(ctx)
		if !paused {
			e.runLoop.Add(1)
		}
	}
}

func (e *Engine) sleep(ctx context.Context) {
	t := time.NewTimer(e.settings.LoopDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-e.wake:
	case <-t.C:
	}
}

// runOneCycle scans due folders, then rediscovers folders when a scan
// happened or a rescan window expired. It reports whether scanning is paused.
func (e *Engine) runOneCycle(cfg *Config, sess store.Session) (paused bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle failed", map[string]string{"panic": fmt.Sprint(r)})
		}
	}()

	refreshed := false
	if cfg.AnyWatchedFolderNeedsScan() {
		e.refresh(sess)
		refreshed = true
		if e.scanningIsPaused(cfg, sess) {
			if !e.paused.Swap(true) {
				e.logger.Info("scanning paused", map[string]string{"signal": cfg.PauseScanNodePath()})
			}
			return true
		}
		if e.paused.Swap(false) {
			e.logger.Info("scanning resumed", nil)
		}
	}

	scanned := false
	for _, f := range cfg.WatchedFolders() {
		if !f.NeedsScan() {
			continue
		}
		scanned = true
		res, err := f.Scan()
		e.scanFolders.Add(1)
		if err != nil {
			e.logger.Error("scan failed", map[string]string{"folder": f.Path(), "error": err.Error()})
			continue
		}
		if !res.Empty() {
			e.installer.UpdateResources(resource.Scheme, res.ToAdd, res.ToRemove)
		}
	}

	if scanned || e.timer.Expired() {
		if !refreshed {
			e.refresh(sess)
		}
		e.timer.Reset()
		e.updateFoldersList.Add(1)
		removed, err := cfg.UpdateFoldersList(sess)
		if err != nil {
			e.logger.Error("updating folder list", logging.Err(err))
		}
		if len(removed) > 0 {
			e.installer.UpdateResources(resource.Scheme, nil, removed)
		}
	}
	return false
}

// refresh makes changes committed by other sessions visible to sess.
func (e *Engine) refresh(sess store.Session) {
	if err := sess.Refresh(); err != nil {
		e.logger.Warn("refreshing session", logging.Err(err))
	}
}

// scanningIsPaused reports whether the pause signal node has children.
func (e *Engine) scanningIsPaused(cfg *Config, sess store.Session) bool {
	children, err := sess.Children(cfg.PauseScanNodePath())
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		e.logger.Warn("checking pause signal", logging.Err(err))
		return false
	}
	if len(children) == 0 {
		return false
	}
	if e.logger.Enabled(logging.LevelDebug) {
		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Name
		}
		e.logger.Debug("pause requested", map[string]string{"by": strings.Join(names, ",")})
	}
	return true
}
