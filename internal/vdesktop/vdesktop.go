// Package vdesktop tracks the virtual desktops of the session through an
// OS-specific Service and reports desktops being added, removed or switched.
package vdesktop

import (
	"errors"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/window"
)

var (
	// ErrNotSupported is returned by operations a backend cannot perform.
	ErrNotSupported = errors.New("vdesktop: operation not supported")
	// ErrElementNotFound means the window or desktop is unknown to the
	// desktop service. Windows that never had a view report this.
	ErrElementNotFound = errors.New("vdesktop: element not found")
	// ErrServerUnavailable and ErrCallFailed mean the shell process serving
	// the desktop interfaces went away. Reconnecting usually helps.
	ErrServerUnavailable = errors.New("vdesktop: desktop service unavailable")
	ErrCallFailed        = errors.New("vdesktop: desktop service call failed")
	// ErrNotImplemented is returned by a service method the backend lacks.
	ErrNotImplemented = errors.New("vdesktop: not implemented")
)

// Descriptor identifies a desktop within a Service.
type Descriptor struct {
	ID      uuid.UUID
	Monitor native.Monitor
}

// Service is the raw capability set of a virtual desktop backend. Indices
// are zero-based and follow the backend's desktop order.
type Service interface {
	// Connect (re)establishes the connection to the backend.
	Connect() error

	CurrentDesktopIndex() (int, error)
	CurrentDesktopID() (uuid.UUID, error)
	DesktopCount() (int, error)
	Desktops() ([]Descriptor, error)
	DesktopByIndex(index int) (Descriptor, error)
	DesktopIndex(d Descriptor) (int, error)
	DesktopName(d Descriptor) (string, error)
	SwitchToDesktop(d Descriptor) error
	MoveToDesktop(h native.Handle, d Descriptor) error
	IsWindowPinned(h native.Handle) (bool, error)
	IsWindowOnCurrentDesktop(h native.Handle) (bool, error)
	HasWindow(d Descriptor, h native.Handle) (bool, error)
	IsCurrentDesktop(d Descriptor) (bool, error)
}

// ChangeNotifier is implemented by services and managers that can push
// desktop changes instead of being polled. stop unregisters fn.
type ChangeNotifier interface {
	NotifyChanges(fn func()) (stop func())
}

// Desktop is one virtual desktop.
type Desktop interface {
	ID() uuid.UUID
	// Index and Name are looked up on every call since desktops can be
	// reordered and renamed at any time.
	Index() int
	Name() string
	IsCurrent() bool
	IsAlive() bool
	HasWindow(w *window.Window) bool
	SwitchTo() error
	MoveWindow(w *window.Window) error
	SetName(name string) error
	Remove() error
	Events() *DesktopEvents
}

// Manager is the ordered list of desktops of the session.
type Manager interface {
	// CanManageVirtualDesktops is false for the single-desktop fallback.
	CanManageVirtualDesktops() bool
	Desktops() []Desktop
	CurrentDesktop() Desktop
	CreateDesktop() (Desktop, error)
	IsWindowPinned(w *window.Window) bool
	PinWindow(w *window.Window) error
	UnpinWindow(w *window.Window) error
	// IsNotOnCurrentDesktop reports whether h lives on a desktop other
	// than the current one.
	IsNotOnCurrentDesktop(h native.Handle) bool
	// CheckVirtualDesktopChanges reconciles the list with the backend and
	// fires the change events.
	CheckVirtualDesktopChanges() error
	Events() *ManagerEvents
}

// CurrentChange carries the new and previous current desktop. Old is nil if
// the previous desktop no longer exists.
type CurrentChange struct {
	New Desktop
	Old Desktop
}

type ManagerEvents struct {
	DesktopAdded          event.Registry[Desktop]
	DesktopRemoved        event.Registry[Desktop]
	CurrentDesktopChanged event.Registry[CurrentChange]
}

type DesktopEvents struct {
	Removed event.Registry[Desktop]
}

// Equal reports whether a and b are the same desktop.
func Equal(a, b Desktop) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}

func isElementNotFound(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}
