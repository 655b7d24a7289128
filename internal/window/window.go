// Package window models top-level OS windows: a cheap Handle for every
// window the workspace has seen, promoted to a full Window once the window
// becomes interesting.
package window

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
)

var (
	// ErrInvalidWindow means the handle no longer refers to a window.
	ErrInvalidWindow = errors.New("window: invalid window handle")
	// ErrInvalidOperation is a contract violation by the caller.
	ErrInvalidOperation = errors.New("window: invalid operation")
)

// InvalidHandleTitle is reported for windows whose title cannot be read.
const InvalidHandleTitle = "[Invalid handle]"

// queryTimeout bounds messages sent to possibly hung windows.
const queryTimeout = 3000 * time.Millisecond

// State is the show state of a window.
type State int

const (
	Restored State = iota
	Minimized
	Maximized
)

func (s State) String() string {
	switch s {
	case Restored:
		return "restored"
	case Minimized:
		return "minimized"
	case Maximized:
		return "maximized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "restored", "normal":
		*s = Restored
	case "minimized":
		*s = Minimized
	case "maximized":
		*s = Maximized
	default:
		return fmt.Errorf("%w: unknown window state %q", ErrInvalidOperation, string(b))
	}
	return nil
}

// stateFromShowCmd maps a placement show command onto a State.
func stateFromShowCmd(cmd native.ShowCmd) State {
	switch {
	case cmd.Maximized():
		return Maximized
	case cmd.Minimized():
		return Minimized
	default:
		return Restored
	}
}

// VisibilityHost answers the questions the top-level visibility heuristic
// needs beyond raw window queries.
type VisibilityHost interface {
	System() native.WindowAPI
	IsNotOnCurrentDesktop(h native.Handle) bool
}

// Host is the workspace a Window belongs to.
type Host interface {
	VisibilityHost
	// DisplayBounds lists the bounds of every known display.
	DisplayBounds() []geom.Rect
	// MaximizeTolerance is the close-match tolerance, in pixels, for
	// treating a restored window covering a display as maximized.
	MaximizeTolerance() int
	// LookupVisible returns the Window for h if it is in the visible set.
	LookupVisible(h native.Handle) *Window
	// Background is the loop slow per-window queries run on.
	Background() *eventloop.Loop
}

// Window caches the observable state of one top-level window.
type Window struct {
	host   Host
	sys    native.WindowAPI
	handle native.Handle
	events Events

	dead atomic.Bool

	mu              sync.Mutex
	title           string
	position        geom.Rect
	initialPosition geom.Rect
	state           State
	topmost         bool
	focused         bool
}

// New creates the Window for h. It fails with ErrInvalidWindow if the
// window is already gone.
func New(host Host, h native.Handle) (*Window, error) {
	w := &Window{
		host:   host,
		sys:    host.System(),
		handle: h,
	}
	title, err := w.fetchTitle(true)
	if err != nil {
		return nil, err
	}
	w.title = title
	return w, nil
}

// Handle returns the OS handle.
func (w *Window) Handle() native.Handle {
	return w.handle
}

// Events returns the window's listener registries.
func (w *Window) Events() *Events {
	return &w.events
}

func (w *Window) String() string {
	if !w.IsAlive() {
		return "[Invalid window]"
	}
	return fmt.Sprintf("[%s]: %q", w.handle, w.Title())
}

// IsAlive reports whether the handle still refers to a window. Once a
// window is observed dead it stays dead.
func (w *Window) IsAlive() bool {
	if w.dead.Load() {
		return false
	}
	if !w.sys.IsWindow(w.handle) {
		w.markDead()
		return false
	}
	return true
}

func (w *Window) markDead() {
	w.dead.Store(true)
}

// Title returns the last known title.
func (w *Window) Title() string {
	if w.dead.Load() {
		return InvalidHandleTitle
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

// Position returns the last known window rectangle, or the empty rectangle
// once the window is dead.
func (w *Window) Position() geom.Rect {
	if !w.IsAlive() {
		return geom.Rect{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

// State returns the last known state, or Minimized once the window is dead.
func (w *Window) State() State {
	if !w.IsAlive() {
		return Minimized
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Window) IsTopmost() bool {
	if !w.IsAlive() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.topmost
}

func (w *Window) IsFocused() bool {
	if !w.IsAlive() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

func (w *Window) hasStyle(bit uint32) bool {
	style, err := w.sys.Style(w.handle)
	if err != nil {
		return false
	}
	return style&bit != 0
}

func (w *Window) CanResize() bool {
	return w.IsAlive() && w.hasStyle(native.WS_SIZEBOX) && w.sys.ProbeAccess(w.handle)
}

func (w *Window) CanMove() bool {
	return w.IsAlive() && w.sys.ProbeAccess(w.handle)
}

func (w *Window) CanReorder() bool {
	return w.IsAlive() && w.sys.ProbeAccess(w.handle)
}

func (w *Window) CanMinimize() bool {
	return w.IsAlive() && w.hasStyle(native.WS_MINIMIZEBOX) && w.sys.ProbeAccess(w.handle)
}

func (w *Window) CanMaximize() bool {
	return w.IsAlive() && w.hasStyle(native.WS_MAXIMIZEBOX) && w.sys.ProbeAccess(w.handle)
}

func (w *Window) CanClose() bool {
	return w.IsAlive() && w.sys.ProbeAccess(w.handle)
}

// IsTopLevelVisible runs the visibility heuristic for this window.
func (w *Window) IsTopLevelVisible() bool {
	return IsTopLevelVisible(w.host, w.handle)
}

// fetchTitle asks the window for its text. A hung or dead window yields
// InvalidHandleTitle; with strict set a dead window is an error instead.
func (w *Window) fetchTitle(strict bool) (string, error) {
	title, err := w.sys.WindowText(w.handle, queryTimeout)
	if err != nil {
		if strict && !w.IsAlive() {
			return "", fmt.Errorf("%w: %s", ErrInvalidWindow, w.handle)
		}
		return InvalidHandleTitle, nil
	}
	return title, nil
}
