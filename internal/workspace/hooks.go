package workspace

import (
	"errors"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/window"
)

// schedule queues task unless the recheck guarded by flag is already queued.
func (w *Workspace) schedule(flag *atomic.Bool, task eventloop.Task) {
	if !flag.Swap(true) {
		w.processing.Schedule(task)
	}
}

// trackedWindow returns the promoted Window of h, or nil.
func (w *Workspace) trackedWindow(h native.Handle) *window.Window {
	w.windowsMu.Lock()
	handle := w.windowSet[h]
	w.windowsMu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Window()
}

// WinEvent implements native.Sink. It runs on the pump goroutine and only
// enqueues work.
func (w *Workspace) WinEvent(ev native.WinEvent) {
	if ev.ObjectID == native.OBJID_CURSOR && ev.Event == native.EVENT_OBJECT_LOCATIONCHANGE {
		w.schedule(&w.pending.cursor, w.onCursorLocationChanged)
		return
	}
	if ev.ObjectID != native.OBJID_WINDOW || ev.ChildID != native.CHILDID_SELF {
		return
	}

	h := ev.Hwnd
	switch ev.Event {
	case native.EVENT_OBJECT_CREATE:
		w.processing.Schedule(func() error { return w.onWindowCreated(h) })
		w.schedule(&w.pending.foreground, w.checkForegroundWindow)
	case native.EVENT_OBJECT_DESTROY:
		w.processing.Post(func() { w.onWindowDestroyed(h) })
		w.schedule(&w.pending.foreground, w.checkForegroundWindow)
	case native.EVENT_SYSTEM_DESKTOPSWITCH:
		w.processing.Schedule(w.onDesktopSwitch)
	case native.EVENT_SYSTEM_FOREGROUND:
		w.schedule(&w.pending.foreground, w.checkForegroundWindow)
	case native.EVENT_OBJECT_NAMECHANGE:
		if win := w.trackedWindow(h); win != nil {
			w.background.Post(win.OnTitleChange)
		}
	case native.EVENT_SYSTEM_MOVESIZESTART:
		if win := w.trackedWindow(h); win != nil {
			w.processing.Post(win.OnMoveSizeStart)
		}
	case native.EVENT_SYSTEM_MOVESIZEEND:
		if win := w.trackedWindow(h); win != nil {
			w.processing.Schedule(win.OnMoveSizeEnd)
		}
	case native.EVENT_OBJECT_LOCATIONCHANGE:
		if win := w.trackedWindow(h); win != nil {
			w.processing.Schedule(win.OnPositionChanged)
		}
	}
}

// Timer implements native.Sink.
func (w *Workspace) Timer(kind native.TimerKind) {
	switch kind {
	case native.TimerWatch:
		w.schedule(&w.pending.watch, w.onTimerWatch)
	case native.TimerRecent:
		w.schedule(&w.pending.recent, w.onRecentTimer)
	}
}

// DisplayChange implements native.Sink.
func (w *Workspace) DisplayChange() {
	dm, _ := w.managers()
	w.processing.Schedule(dm.OnDisplayChange)
}

// SettingChange implements native.Sink.
func (w *Workspace) SettingChange() {
	dm, _ := w.managers()
	w.processing.Schedule(dm.OnSettingChange)
}

func (w *Workspace) onTimerWatch() error {
	w.pending.watch.Store(false)
	w.refresh()
	return nil
}

// RefreshConfiguration queues a full dirty check: desktops, visibility of
// every tracked window, the state of every visible window, then display
// settings and the display set.
func (w *Workspace) RefreshConfiguration() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.refresh()
	return nil
}

func (w *Workspace) refresh() {
	dm, _ := w.managers()
	w.schedule(&w.pending.desktops, w.checkDesktops)
	w.schedule(&w.pending.visibility, w.checkVisibilityChanges)
	w.schedule(&w.pending.visibleWindows, w.checkVisibleWindows)
	w.processing.Schedule(dm.OnSettingChange)
	w.processing.Schedule(dm.OnDisplayChange)
}

func (w *Workspace) checkDesktops() error {
	w.pending.desktops.Store(false)
	_, vdm := w.managers()
	return vdm.CheckVirtualDesktopChanges()
}

// onDesktopSwitch runs the desktop and visibility checks right away and
// absorbs any that are already queued.
func (w *Workspace) onDesktopSwitch() error {
	w.pending.desktops.Store(true)
	w.pending.visibility.Store(true)
	return multierr.Append(w.checkDesktops(), w.checkVisibilityChanges())
}

func isInvalidHandle(err error) bool {
	return errors.Is(err, native.ErrInvalidHandle) || errors.Is(err, window.ErrInvalidWindow)
}

// onProcessingError receives every failed or panicking processing task. A
// window that vanished mid-task only warrants a visibility sweep. Anything
// else goes to the UnhandledError listeners, and with none subscribed it
// is fatal. Aggregated errors are routed member by member.
func (w *Workspace) onProcessingError(err error) {
	var raced bool
	var rest []error
	for _, e := range multierr.Errors(err) {
		if isInvalidHandle(e) {
			raced = true
			continue
		}
		rest = append(rest, e)
	}
	if raced {
		logger.WithComponent("workspace").Debug().Err(err).Msg("Window vanished during a task, rechecking visibility")
		for _, e := range multierr.Errors(w.checkVisibilityChanges()) {
			if !isInvalidHandle(e) {
				rest = append(rest, e)
			}
		}
	}
	for _, e := range rest {
		w.unhandled(e)
	}
}

func (w *Workspace) unhandled(err error) {
	if w.events.UnhandledError.Len() == 0 {
		logger.WithComponent("workspace").Error().Err(err).Msg("Unhandled processing error")
		panic(err)
	}
	w.publishError(err)
	w.events.UnhandledError.Fire(err)
}
