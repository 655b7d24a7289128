package workspace

import (
	"slices"

	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
)

// ZOrderComparer orders windows topmost first. It follows the z-order at
// the time it was created; windows unknown then sort last.
type ZOrderComparer func(a, b *window.Window) int

func (w *Workspace) setCursor(pt geom.Point) (old geom.Point) {
	w.cursorMu.Lock()
	defer w.cursorMu.Unlock()
	old, w.cursor = w.cursor, pt
	return old
}

// CursorLocation returns the last observed cursor location.
func (w *Workspace) CursorLocation() (geom.Point, error) {
	if err := w.checkOpen(); err != nil {
		return geom.Point{}, err
	}
	w.cursorMu.Lock()
	defer w.cursorMu.Unlock()
	return w.cursor, nil
}

// FocusedWindow returns the focused window, or nil when the foreground
// window is not tracked.
func (w *Workspace) FocusedWindow() (*window.Window, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	w.windowsMu.Lock()
	defer w.windowsMu.Unlock()
	if h := w.windowSet[w.focused]; h != nil {
		return h.Window(), nil
	}
	return nil, nil
}

// FindWindow returns the Window for h, promoting the handle if needed. It
// returns nil for handles the workspace does not track or that have died.
func (w *Workspace) FindWindow(h native.Handle) (*window.Window, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	w.windowsMu.Lock()
	handle := w.windowSet[h]
	w.windowsMu.Unlock()
	if handle == nil {
		return nil, nil
	}
	win, err := handle.EnsureWindow(w)
	if err != nil {
		return nil, nil
	}
	return win, nil
}

// FindWindowFromPoint returns the topmost visible window containing pt, or
// nil.
func (w *Workspace) FindWindowFromPoint(pt geom.Point) (*window.Window, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	var candidates []*window.Window
	for _, win := range w.visibleWindows() {
		if win.Position().Contains(pt) {
			candidates = append(candidates, win)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}
	cmp, err := w.SnapshotZOrderComparer()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(candidates, cmp)
	return candidates[0], nil
}

// Snapshot returns the visible windows that are still top-level visible.
func (w *Workspace) Snapshot() ([]*window.Window, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	var out []*window.Window
	for _, win := range w.visibleWindows() {
		if win.IsTopLevelVisible() {
			out = append(out, win)
		}
	}
	return out, nil
}

// SnapshotZOrderComparer captures the current z-order.
func (w *Workspace) SnapshotZOrderComparer() (ZOrderComparer, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	hs, err := w.sys.EnumWindows()
	if err != nil {
		return nil, err
	}
	order := make(map[native.Handle]int, len(hs))
	for i, h := range hs {
		order[h] = i
	}
	return func(a, b *window.Window) int {
		za, okA := order[a.Handle()]
		zb, okB := order[b.Handle()]
		switch {
		case okA && okB:
			return za - zb
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	}, nil
}

// DisplayManager returns the display manager created by Open.
func (w *Workspace) DisplayManager() (*display.Manager, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	dm, _ := w.managers()
	return dm, nil
}

// VirtualDesktopManager returns the desktop manager selected by Open.
func (w *Workspace) VirtualDesktopManager() (vdesktop.Manager, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	_, vdm := w.managers()
	return vdm, nil
}

// UnsafeCreateFromHandle builds a Window for h that the workspace does not
// track. Its events never fire on their own.
func (w *Workspace) UnsafeCreateFromHandle(h native.Handle) (*window.Window, error) {
	return window.New(w, h)
}
