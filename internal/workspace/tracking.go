package workspace

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/window"
)

// Everything in this file runs on the processing loop.

func (w *Workspace) snapshotWindows() error {
	hs, err := w.sys.EnumWindows()
	if err != nil {
		return fmt.Errorf("enumerate windows: %w", err)
	}
	var errs error
	for _, hwnd := range hs {
		h := w.track(hwnd)
		if w.promote(h) {
			win := h.Window()
			w.addVisible(win)
			errs = multierr.Append(errs, w.manage(win, &w.events.WindowManaging, KindWindowManaging))
		}
	}
	return errs
}

// track returns the handle record of hwnd, creating it when new.
func (w *Workspace) track(hwnd native.Handle) *window.Handle {
	w.windowsMu.Lock()
	defer w.windowsMu.Unlock()
	if h, ok := w.windowSet[hwnd]; ok {
		return h
	}
	h := window.NewHandle(hwnd)
	w.windowSet[hwnd] = h
	w.windowList = append(w.windowList, h)
	return h
}

func (w *Workspace) untrack(hwnd native.Handle) *window.Handle {
	w.windowsMu.Lock()
	defer w.windowsMu.Unlock()
	h, ok := w.windowSet[hwnd]
	if !ok {
		return nil
	}
	delete(w.windowSet, hwnd)
	for i, o := range w.windowList {
		if o == h {
			w.windowList = append(w.windowList[:i:i], w.windowList[i+1:]...)
			break
		}
	}
	return h
}

func (w *Workspace) trackedHandles() []*window.Handle {
	w.windowsMu.Lock()
	defer w.windowsMu.Unlock()
	return append([]*window.Handle(nil), w.windowList...)
}

// promote reports whether h is top-level visible, creating its Window if
// so. A window that dies while being promoted is not visible.
func (w *Workspace) promote(h *window.Handle) bool {
	if !window.IsTopLevelVisible(w, h.OS()) {
		return false
	}
	_, err := h.EnsureWindow(w)
	return err == nil
}

func (w *Workspace) isVisible(win *window.Window) bool {
	w.visibleMu.Lock()
	defer w.visibleMu.Unlock()
	for _, o := range w.visible {
		if o == win {
			return true
		}
	}
	return false
}

func (w *Workspace) addVisible(win *window.Window) {
	w.visibleMu.Lock()
	w.visible = append(w.visible, win)
	w.visibleMu.Unlock()
}

func (w *Workspace) removeVisible(win *window.Window) bool {
	w.visibleMu.Lock()
	defer w.visibleMu.Unlock()
	for i, o := range w.visible {
		if o == win {
			w.visible = append(w.visible[:i:i], w.visible[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Workspace) visibleWindows() []*window.Window {
	w.visibleMu.Lock()
	defer w.visibleMu.Unlock()
	return append([]*window.Window(nil), w.visible...)
}

// manage runs OnAdded for a window that entered the visible set, then fires
// reg even if OnAdded failed or a listener panicked.
func (w *Workspace) manage(win *window.Window, reg *event.Registry[*window.Window], kind Kind) error {
	defer func() {
		w.watchWindow(win)
		w.publishWindow(kind, win)
		reg.Fire(win)
	}()
	return win.OnAdded()
}

// unmanage runs OnRemoved for a window that left the visible set, then
// drops it from the set and fires WindowRemoved.
func (w *Workspace) unmanage(win *window.Window) {
	defer func() {
		w.removeVisible(win)
		w.unwatchWindow(win)
		w.publishWindow(KindWindowRemoved, win)
		w.events.WindowRemoved.Fire(win)
	}()
	win.OnRemoved()
}

func (w *Workspace) onWindowCreated(hwnd native.Handle) error {
	h := w.track(hwnd)
	if win := h.Window(); win != nil && w.isVisible(win) {
		return nil
	}
	if w.promote(h) {
		win := h.Window()
		w.addVisible(win)
		return w.manage(win, &w.events.WindowAdded, KindWindowAdded)
	}
	if window.IsLikelyTopLevelVisibleSoon(w, hwnd) {
		w.recentMu.Lock()
		w.recent = append(w.recent, recentWindow{at: time.Now(), handle: h})
		w.recentMu.Unlock()
	}
	return nil
}

// onWindowDestroyed fires OnRemoved and WindowRemoved if the window was
// visible, then OnDestroyed and WindowDestroyed. Windows never promoted are
// dropped silently.
func (w *Workspace) onWindowDestroyed(hwnd native.Handle) {
	h := w.untrack(hwnd)
	if h == nil {
		return
	}
	win := h.Window()
	if win == nil {
		return
	}

	defer func() {
		defer func() {
			w.publishWindow(KindWindowDestroyed, win)
			w.events.WindowDestroyed.Fire(win)
		}()
		win.OnDestroyed()
	}()

	if w.isVisible(win) {
		w.unmanage(win)
	}
}

// checkVisibilityChanges reconciles the visible set with every tracked
// window.
func (w *Workspace) checkVisibilityChanges() error {
	w.pending.visibility.Store(false)
	var errs error
	for _, h := range w.trackedHandles() {
		errs = multierr.Append(errs, w.checkVisibility(h))
	}
	return errs
}

func (w *Workspace) checkVisibility(h *window.Handle) error {
	t := eventloop.StartBlockTimer()
	visible := w.promote(h)
	t.LogIfExceeded(w.cfg.SlowTaskThreshold, fmt.Sprintf("Visibility check of %s took too long", h.OS()))

	win := h.Window()
	inList := win != nil && w.isVisible(win)
	if visible == inList {
		return nil
	}
	if !visible {
		w.unmanage(win)
		return nil
	}

	w.addVisible(win)
	return w.manage(win, &w.events.WindowAdded, KindWindowAdded)
}

func (w *Workspace) checkVisibleWindows() error {
	w.pending.visibleWindows.Store(false)
	var errs error
	for _, win := range w.visibleWindows() {
		errs = multierr.Append(errs, win.CheckChanges())
	}
	return errs
}

// onRecentTimer rechecks windows created within the recent window
// duration. Each is checked once more after it expires.
func (w *Workspace) onRecentTimer() error {
	w.pending.recent.Store(false)

	now := time.Now()
	w.recentMu.Lock()
	check := make([]*window.Handle, 0, len(w.recent))
	kept := w.recent[:0]
	for _, r := range w.recent {
		if now.Sub(r.at) <= w.cfg.RecentWindowDuration {
			kept = append(kept, r)
		}
		check = append(check, r.handle)
	}
	for i := len(kept); i < len(w.recent); i++ {
		w.recent[i] = recentWindow{}
	}
	w.recent = kept
	w.recentMu.Unlock()

	var errs error
	for _, h := range check {
		errs = multierr.Append(errs, w.checkVisibility(h))
	}
	return errs
}

func (w *Workspace) checkForegroundWindow() error {
	w.pending.foreground.Store(false)
	fg := w.sys.ForegroundWindow()
	if fg != 0 {
		fg = w.sys.RootAncestor(fg)
	}
	w.onWindowForeground(fg)
	return nil
}

// onWindowForeground moves focus to hwnd. Only promoted windows can hold
// focus; focusing anything else leaves no window focused.
func (w *Workspace) onWindowForeground(hwnd native.Handle) {
	w.windowsMu.Lock()
	if w.focused == hwnd {
		w.windowsMu.Unlock()
		return
	}
	var gained, lost *window.Window
	if h := w.windowSet[w.focused]; h != nil {
		lost = h.Window()
	}
	if h := w.windowSet[hwnd]; h != nil {
		gained = h.Window()
	}
	w.focused = 0
	if gained != nil {
		w.focused = gained.Handle()
	}
	w.windowsMu.Unlock()

	if gained == nil && lost == nil {
		return
	}

	defer func() {
		change := FocusChange{New: gained, Old: lost}
		w.publishFocus(change)
		w.events.FocusedWindowChanged.Fire(change)
	}()
	defer func() {
		if gained != nil {
			gained.OnForeground()
		}
	}()
	if lost != nil {
		lost.OnBackground()
	}
}

func (w *Workspace) onCursorLocationChanged() error {
	w.pending.cursor.Store(false)
	pt, err := w.sys.CursorPos()
	if err != nil {
		if errors.Is(err, native.ErrAccessDenied) {
			// The secure desktop is active.
			return nil
		}
		return fmt.Errorf("cursor position: %w", err)
	}
	if old := w.setCursor(pt); old != pt {
		change := CursorChange{New: pt, Old: old}
		w.publishCursor(change)
		w.events.CursorLocationChanged.Fire(change)
	}
	return nil
}
