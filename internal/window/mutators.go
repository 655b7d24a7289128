package window

import (
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Mutators call the OS on the caller's goroutine. A failure on a window
// that has since died is not an error; the window is marked dead and the
// call returns nil.

// SetPosition moves and resizes a restored window. A window that cannot be
// resized keeps its current size.
func (w *Window) SetPosition(pos geom.Rect) error {
	w.mu.Lock()
	state := w.state
	w.mu.Unlock()
	if state != Restored {
		return fmt.Errorf("%w: cannot set the position of a window that is not restored", ErrInvalidOperation)
	}

	flags := uint32(native.SWP_NOZORDER | native.SWP_ASYNCWINDOWPOS | native.SWP_NOACTIVATE)
	if !w.CanResize() {
		cur := w.Position()
		flags |= native.SWP_NOSIZE
		pos = geom.OffsetAndSize(pos.Left, pos.Top, cur.Width(), cur.Height())
	}
	if !w.CanMove() {
		flags |= native.SWP_NOMOVE
	}

	if err := w.sys.SetWindowPos(w.handle, 0, pos, flags); err != nil {
		return w.readFailed(err)
	}
	w.updatePositionAndNotify(pos)
	return nil
}

// SetState minimizes, maximizes or restores the window.
func (w *Window) SetState(state State) error {
	var cmd native.ShowCmd
	switch state {
	case Minimized:
		if !w.CanMinimize() {
			return fmt.Errorf("%w: the window does not support minimization", ErrInvalidOperation)
		}
		cmd = native.SW_MINIMIZE
	case Maximized:
		if !w.CanMaximize() {
			return fmt.Errorf("%w: the window does not support maximization", ErrInvalidOperation)
		}
		cmd = native.SW_MAXIMIZE
	case Restored:
		cmd = native.SW_NORMAL
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOperation, state)
	}

	// ShowWindow reports the previous visibility, so false is only a
	// failure if the window is gone.
	if !w.sys.ShowWindow(w.handle, cmd) && !w.IsAlive() {
		return nil
	}
	w.updateStateAndNotify(state)
	return nil
}

// SetTopmost adds or removes the window from the topmost band.
func (w *Window) SetTopmost(topmost bool) error {
	if !w.IsAlive() {
		return nil
	}
	after := native.HWND_NOTOPMOST
	if topmost {
		after = native.HWND_TOPMOST
	}
	if err := w.insertAfter(after); err != nil {
		return err
	}
	w.updateTopmostAndNotify(topmost)
	return nil
}

// RequestFocus asks the OS to bring the window to the foreground.
func (w *Window) RequestFocus() bool {
	if !w.sys.SetForeground(w.handle) {
		w.IsAlive()
		return false
	}
	return true
}

// Close asks the window to close.
func (w *Window) Close() error {
	if err := w.sys.PostClose(w.handle); err != nil {
		return w.readFailed(err)
	}
	return nil
}

// InsertAfter places the window directly below other in the z-order.
func (w *Window) InsertAfter(other *Window) error {
	if !w.IsAlive() {
		return nil
	}
	return w.insertAfter(other.handle)
}

// SendToBack moves the window to the bottom of the z-order.
func (w *Window) SendToBack() error {
	if !w.IsAlive() {
		return nil
	}
	return w.insertAfter(native.HWND_BOTTOM)
}

// BringToFront moves the window to the top of its z-order band.
func (w *Window) BringToFront() error {
	if !w.IsAlive() {
		return nil
	}
	return w.insertAfter(native.HWND_TOP)
}

func (w *Window) insertAfter(after native.Handle) error {
	flags := uint32(native.SWP_NOMOVE | native.SWP_NOSIZE | native.SWP_ASYNCWINDOWPOS | native.SWP_NOACTIVATE)
	if err := w.sys.SetWindowPos(w.handle, after, geom.Rect{}, flags); err != nil {
		return w.readFailed(err)
	}
	return nil
}

// NextWindow returns the nearest visible window below this one.
func (w *Window) NextWindow() *Window {
	return w.sibling(true)
}

// PreviousWindow returns the nearest visible window above this one.
func (w *Window) PreviousWindow() *Window {
	return w.sibling(false)
}

func (w *Window) sibling(next bool) *Window {
	if !w.IsAlive() {
		return nil
	}
	for h := w.sys.Sibling(w.handle, next); h != 0; h = w.sys.Sibling(h, next) {
		if found := w.host.LookupVisible(h); found != nil {
			return found
		}
	}
	return nil
}

// ProcessInfo describes the process owning a window.
type ProcessInfo struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
	Exe  string `json:"exe"`
}

// Process looks up the owning process.
func (w *Window) Process() (ProcessInfo, error) {
	if !w.IsAlive() {
		return ProcessInfo{}, fmt.Errorf("%w: %s", ErrInvalidWindow, w.handle)
	}
	pid, err := w.sys.ProcessID(w.handle)
	if err != nil {
		if !w.IsAlive() {
			return ProcessInfo{}, fmt.Errorf("%w: %s", ErrInvalidWindow, w.handle)
		}
		return ProcessInfo{}, err
	}

	info := ProcessInfo{PID: int32(pid)}
	p, err := process.NewProcess(info.PID)
	if err != nil {
		return info, fmt.Errorf("process %d: %w", pid, err)
	}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if exe, err := p.Exe(); err == nil {
		info.Exe = exe
	}
	return info, nil
}

// MinSize is the smallest size the window accepts. ok is false when the
// window places no lower bound.
func (w *Window) MinSize() (size geom.Point, ok bool) {
	if !w.CanResize() {
		return w.fixedSize()
	}
	mm, err := w.sys.MinMaxInfo(w.handle, queryTimeout)
	if err != nil || (mm.MinTrack.X == 0 && mm.MinTrack.Y == 0) {
		return geom.Point{}, false
	}
	return mm.MinTrack, true
}

// MaxSize is the largest size the window accepts. ok is false when the
// window places no upper bound.
func (w *Window) MaxSize() (size geom.Point, ok bool) {
	if !w.CanResize() {
		return w.fixedSize()
	}
	mm, err := w.sys.MinMaxInfo(w.handle, queryTimeout)
	if err != nil || (mm.MaxTrack.X == math.MaxInt32 && mm.MaxTrack.Y == math.MaxInt32) {
		return geom.Point{}, false
	}
	return mm.MaxTrack, true
}

func (w *Window) fixedSize() (geom.Point, bool) {
	if !w.IsAlive() {
		return geom.Point{}, false
	}
	return w.Position().Size(), true
}

// FrameMargins is the invisible resize border: the distance between the
// window rectangle and the visible frame on each side.
func (w *Window) FrameMargins() geom.Rect {
	if !w.IsAlive() {
		return geom.Rect{}
	}
	frame, err := w.sys.ExtendedFrameBounds(w.handle)
	if err != nil {
		return geom.Rect{}
	}
	r, err := w.sys.Rect(w.handle)
	if err != nil {
		return geom.Rect{}
	}
	return geom.Rect{
		Left:   frame.Left - r.Left,
		Top:    frame.Top - r.Top,
		Right:  r.Right - frame.Right,
		Bottom: r.Bottom - frame.Bottom,
	}
}
