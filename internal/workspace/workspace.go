// Package workspace keeps a live model of the session's top-level windows,
// displays and virtual desktops, reconciled from OS hook events and periodic
// dirty checks.
//
// Three goroutines cooperate once the workspace is open: the OS event pump,
// which only enqueues tasks; the processing loop, the single writer of every
// tracked collection; and the background loop, for queries that may block on
// hung windows.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
)

var (
	ErrNotOpen     = errors.New("workspace: not open")
	ErrAlreadyOpen = errors.New("workspace: already open")
	ErrDisposed    = errors.New("workspace: disposed")
)

type lifecycle int

const (
	unopened lifecycle = iota
	opened
	disposed
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithVirtualDesktopManager uses m instead of the backend detected for the
// running OS.
func WithVirtualDesktopManager(m vdesktop.Manager) Option {
	return func(w *Workspace) {
		w.vdm = m
	}
}

// pendingFlags coalesce rechecks: a trigger while the same recheck is
// already queued is dropped. Each task clears its flag when it starts.
type pendingFlags struct {
	watch          atomic.Bool
	recent         atomic.Bool
	desktops       atomic.Bool
	visibility     atomic.Bool
	visibleWindows atomic.Bool
	foreground     atomic.Bool
	cursor         atomic.Bool
}

type recentWindow struct {
	at     time.Time
	handle *window.Handle
}

// Workspace is the orchestrator. It implements window.Host for the windows
// it tracks and native.Sink for the pump.
type Workspace struct {
	sys    native.System
	cfg    config.WorkspaceConfig
	dcfg   config.DisplayConfig
	vdcfg  config.VirtualDesktopConfig
	events Events
	feed   feed

	processing *eventloop.Loop
	background *eventloop.Loop
	pending    pendingFlags

	mu            sync.Mutex
	state         lifecycle
	dm            *display.Manager
	vdm           vdesktop.Manager
	cancel        context.CancelFunc
	pumpDone      chan struct{}
	stopNotify    func()
	stopFeedWatch func()

	// windowsMu guards the tracked handles and the focused handle. Only the
	// processing loop mutates them.
	windowsMu  sync.Mutex
	windowSet  map[native.Handle]*window.Handle
	windowList []*window.Handle
	focused    native.Handle

	visibleMu sync.Mutex
	visible   []*window.Window

	recentMu sync.Mutex
	recent   []recentWindow

	cursorMu sync.Mutex
	cursor   geom.Point
}

var (
	_ window.Host = (*Workspace)(nil)
	_ native.Sink = (*Workspace)(nil)
)

// New creates an inert workspace. Nothing is tracked until Open.
func New(sys native.System, cfg config.Config, opts ...Option) *Workspace {
	w := &Workspace{
		sys:        sys,
		cfg:        cfg.Workspace,
		dcfg:       cfg.Displays,
		vdcfg:      cfg.VirtualDesktops,
		processing: eventloop.New("processing"),
		background: eventloop.New("background"),
		windowSet:  make(map[native.Handle]*window.Handle),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.processing.OnUnhandled(w.onProcessingError)
	return w
}

// Events returns the workspace-wide listener registries.
func (w *Workspace) Events() *Events {
	return &w.events
}

// WatchInterval is the period of the coarse dirty check.
func (w *Workspace) WatchInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.WatchInterval
}

// SetWatchInterval changes the coarse dirty-check period. It must be called
// before Open.
func (w *Workspace) SetWatchInterval(d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.unopenedLocked(); err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("%w: watch interval must be positive, got %s", window.ErrInvalidOperation, d)
	}
	w.cfg.WatchInterval = d
	return nil
}

func (w *Workspace) unopenedLocked() error {
	switch w.state {
	case opened:
		return ErrAlreadyOpen
	case disposed:
		return ErrDisposed
	}
	return nil
}

func (w *Workspace) checkOpen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case unopened:
		return ErrNotOpen
	case disposed:
		return ErrDisposed
	}
	return nil
}

// IsOpen reports whether Open succeeded and Dispose has not been called.
func (w *Workspace) IsOpen() bool {
	return w.checkOpen() == nil
}

// Open activates the display and desktop managers, queues the initial
// window snapshot and starts the pump and both loops.
func (w *Workspace) Open() error {
	log := logger.WithComponent("workspace")

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.unopenedLocked(); err != nil {
		return err
	}

	dm, err := display.NewManager(w.sys, w.dcfg)
	if err != nil {
		return fmt.Errorf("open displays: %w", err)
	}
	w.dm = dm
	if w.vdm == nil {
		w.vdm = vdesktop.Open(w.sys, w.vdcfg)
	}

	if pt, err := w.sys.CursorPos(); err == nil {
		w.setCursor(pt)
	}

	w.state = opened
	w.stopFeedWatch = w.watchManagers(dm, w.vdm)

	w.processing.Schedule(w.snapshotWindows)
	w.schedule(&w.pending.foreground, w.checkForegroundWindow)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.pumpDone = make(chan struct{})

	go w.processing.Run()
	go w.background.Run()
	go w.runPump(ctx, native.PumpConfig{
		EventMin:       native.EVENT_SYSTEM_FOREGROUND,
		EventMax:       native.EVENT_OBJECT_NAMECHANGE,
		WatchInterval:  w.cfg.WatchInterval,
		RecentInterval: w.cfg.RecentTick,
		Started: func() {
			log.Debug().Msg("Event pump started")
		},
	})

	if n, ok := w.vdm.(vdesktop.ChangeNotifier); ok {
		w.stopNotify = n.NotifyChanges(func() {
			w.schedule(&w.pending.desktops, w.checkDesktops)
		})
	}

	log.Info().
		Dur("watch_interval", w.cfg.WatchInterval).
		Int("displays", len(dm.Displays())).
		Int("desktops", len(w.vdm.Desktops())).
		Bool("virtual_desktops", w.vdm.CanManageVirtualDesktops()).
		Msg("Workspace opened")
	return nil
}

func (w *Workspace) runPump(ctx context.Context, cfg native.PumpConfig) {
	defer close(w.pumpDone)
	if err := w.sys.Pump(ctx, cfg, w); err != nil {
		w.processing.Schedule(func() error {
			return fmt.Errorf("event pump: %w", err)
		})
	}
}

// Dispose stops the pump, drains both loops and joins every worker within
// the join timeout. A worker that does not stop in time is abandoned.
// Dispose is idempotent.
func (w *Workspace) Dispose() {
	w.mu.Lock()
	prev := w.state
	w.state = disposed
	cancel, pumpDone := w.cancel, w.pumpDone
	stopNotify, stopFeedWatch := w.stopNotify, w.stopFeedWatch
	w.mu.Unlock()

	if prev != opened {
		return
	}
	if stopNotify != nil {
		stopNotify()
	}
	cancel()
	w.join("pump", pumpDone)

	w.processing.Shutdown()
	w.background.Shutdown()
	w.join("processing", w.processing.Done())
	w.join("background", w.background.Done())

	stopFeedWatch()
	w.feed.closeAll()
	logger.WithComponent("workspace").Info().Msg("Workspace disposed")
}

func (w *Workspace) join(worker string, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(w.cfg.JoinTimeout):
		logger.WithComponent("workspace").Warn().
			Str("worker", worker).
			Dur("timeout", w.cfg.JoinTimeout).
			Msg("Worker did not stop in time, abandoning it")
	}
}

// Sync blocks until every task queued on the processing loop before the
// call has run. It returns immediately unless the workspace is open.
func (w *Workspace) Sync() {
	if !w.IsOpen() {
		return
	}
	<-w.processing.Sync()
}

func (w *Workspace) managers() (*display.Manager, vdesktop.Manager) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dm, w.vdm
}

// System implements window.VisibilityHost.
func (w *Workspace) System() native.WindowAPI {
	return w.sys
}

// IsNotOnCurrentDesktop implements window.VisibilityHost.
func (w *Workspace) IsNotOnCurrentDesktop(h native.Handle) bool {
	_, vdm := w.managers()
	if vdm == nil {
		return false
	}
	return vdm.IsNotOnCurrentDesktop(h)
}

// DisplayBounds implements window.Host.
func (w *Workspace) DisplayBounds() []geom.Rect {
	dm, _ := w.managers()
	if dm == nil {
		return nil
	}
	return dm.Bounds()
}

// MaximizeTolerance implements window.Host.
func (w *Workspace) MaximizeTolerance() int {
	return w.cfg.MaximizeTolerance
}

// LookupVisible implements window.Host.
func (w *Workspace) LookupVisible(h native.Handle) *window.Window {
	w.windowsMu.Lock()
	handle := w.windowSet[h]
	w.windowsMu.Unlock()
	if handle == nil {
		return nil
	}
	if win := handle.Window(); win != nil && win.IsTopLevelVisible() {
		return win
	}
	return nil
}

// Background implements window.Host.
func (w *Workspace) Background() *eventloop.Loop {
	return w.background
}
