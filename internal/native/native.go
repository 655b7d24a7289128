// Package native is the boundary between the tracking core and the
// operating system. The core speaks the Win32 vocabulary (handles, styles,
// show commands, WinEvents); each platform binding translates its own
// window system onto that vocabulary.
package native

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/winman/internal/geom"
)

// Handle identifies a top-level window.
type Handle uintptr

// Monitor identifies a display monitor.
type Monitor uintptr

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uintptr(h))
}

// Error is a failed OS call. Code carries the Win32 error code or HRESULT.
type Error struct {
	Op   string
	Code uint32
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("native error 0x%x", e.Code)
	}
	return fmt.Sprintf("%s: native error 0x%x", e.Op, e.Code)
}

// Is matches any Error carrying the same code, regardless of Op.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Code-classified sentinels; compare with errors.Is.
var (
	ErrAccessDenied   = &Error{Code: ERROR_ACCESS_DENIED}
	ErrInvalidHandle  = &Error{Code: ERROR_INVALID_WINDOW_HANDLE}
	ErrInvalidMonitor = &Error{Code: ERROR_INVALID_MONITOR_HANDLE}
	ErrTimeout        = &Error{Code: ERROR_TIMEOUT}
)

// NewError builds an Error for op.
func NewError(op string, code uint32) *Error {
	return &Error{Op: op, Code: code}
}

// ShowCmd is the show state reported by GetWindowPlacement.
type ShowCmd uint32

// MinMax is the tracking size range reported by WM_GETMINMAXINFO.
type MinMax struct {
	MinTrack geom.Point
	MaxTrack geom.Point
}

// MonitorInfo describes one monitor at the time of the query.
type MonitorInfo struct {
	DeviceID    string
	Bounds      geom.Rect
	WorkArea    geom.Rect
	Scaling     float64
	RefreshRate int
}

// OSVersion is the running OS build and update revision.
type OSVersion struct {
	Major int
	Minor int
	Build int
	UBR   int
}

// WindowAPI covers window queries and mutators.
type WindowAPI interface {
	// EnumWindows lists top-level windows in z-order, topmost first.
	EnumWindows() ([]Handle, error)
	IsWindow(h Handle) bool
	IsWindowVisible(h Handle) bool
	RootAncestor(h Handle) Handle
	Style(h Handle) (uint32, error)
	ExStyle(h Handle) (uint32, error)
	Cloaked(h Handle) (uint32, error)
	TextLength(h Handle) (int, error)
	// WindowText may block on a hung window; it gives up after timeout.
	WindowText(h Handle, timeout time.Duration) (string, error)
	Rect(h Handle) (geom.Rect, error)
	Placement(h Handle) (ShowCmd, error)
	Sibling(h Handle, next bool) Handle
	ProcessID(h Handle) (uint32, error)
	// ProbeAccess reports whether the owning process can be opened for
	// query, which is the practical test for being able to manipulate it.
	ProbeAccess(h Handle) bool
	ExtendedFrameBounds(h Handle) (geom.Rect, error)
	MinMaxInfo(h Handle, timeout time.Duration) (MinMax, error)

	SetWindowPos(h, insertAfter Handle, r geom.Rect, flags uint32) error
	// ShowWindow reports whether the window was previously visible.
	ShowWindow(h Handle, cmd ShowCmd) bool
	SetForeground(h Handle) bool
	PostClose(h Handle) error

	ForegroundWindow() Handle
	CursorPos() (geom.Point, error)
}

// MonitorAPI covers monitor enumeration.
type MonitorAPI interface {
	// EnumMonitors lists active, non-mirroring monitors.
	EnumMonitors() ([]Monitor, error)
	MonitorInfo(m Monitor) (MonitorInfo, error)
	VirtualScreen() geom.Rect
}

// TimerKind names the periodic timers started by the pump.
type TimerKind int

const (
	// TimerWatch is the coarse dirty-check tick.
	TimerWatch TimerKind = iota + 1
	// TimerRecent rechecks recently created windows.
	TimerRecent
)

func (k TimerKind) String() string {
	switch k {
	case TimerWatch:
		return "watch"
	case TimerRecent:
		return "recent"
	default:
		return fmt.Sprintf("timer(%d)", int(k))
	}
}

// WinEvent is one hook notification.
type WinEvent struct {
	Event    uint32
	Hwnd     Handle
	ObjectID int32
	ChildID  int32
	Thread   uint32
	Time     uint32
}

// Sink receives everything the pump observes. Implementations must not
// block; they are called on the pump thread.
type Sink interface {
	WinEvent(ev WinEvent)
	Timer(kind TimerKind)
	DisplayChange()
	SettingChange()
}

// PumpConfig configures the message pump.
type PumpConfig struct {
	// EventMin and EventMax bound the hooked WinEvent range.
	EventMin uint32
	EventMax uint32
	// WatchInterval and RecentInterval drive the two timers.
	WatchInterval  time.Duration
	RecentInterval time.Duration
	// Started is called once the hook and timers are installed.
	Started func()
}

// EventSource runs the message pump.
type EventSource interface {
	// Pump installs the hook and timers and delivers notifications to sink
	// until ctx is cancelled. Hooks and timers are removed before it returns.
	Pump(ctx context.Context, cfg PumpConfig, sink Sink) error
}

// System is a complete platform binding.
type System interface {
	WindowAPI
	MonitorAPI
	EventSource
	Version() OSVersion
}
