package vdesktop

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/window"
)

// Dummy is the Manager used when no desktop backend is available: a single
// desktop that is always current and holds every live window.
type Dummy struct {
	desktop *dummyDesktop
	events  ManagerEvents
}

var _ Manager = (*Dummy)(nil)

func NewDummy() *Dummy {
	return &Dummy{desktop: &dummyDesktop{name: "Main Desktop"}}
}

func (m *Dummy) CanManageVirtualDesktops() bool           { return false }
func (m *Dummy) Desktops() []Desktop                      { return []Desktop{m.desktop} }
func (m *Dummy) CurrentDesktop() Desktop                  { return m.desktop }
func (m *Dummy) CreateDesktop() (Desktop, error)          { return nil, ErrNotSupported }
func (m *Dummy) IsWindowPinned(*window.Window) bool       { return false }
func (m *Dummy) PinWindow(*window.Window) error           { return ErrNotSupported }
func (m *Dummy) UnpinWindow(*window.Window) error         { return ErrNotSupported }
func (m *Dummy) IsNotOnCurrentDesktop(native.Handle) bool { return false }
func (m *Dummy) CheckVirtualDesktopChanges() error        { return nil }
func (m *Dummy) Events() *ManagerEvents                   { return &m.events }

type dummyDesktop struct {
	events DesktopEvents

	mu   sync.Mutex
	name string
}

func (d *dummyDesktop) ID() uuid.UUID   { return uuid.Nil }
func (d *dummyDesktop) Index() int      { return 0 }
func (d *dummyDesktop) IsCurrent() bool { return true }
func (d *dummyDesktop) IsAlive() bool   { return true }
func (d *dummyDesktop) SwitchTo() error { return nil }
func (d *dummyDesktop) Remove() error   { return ErrNotSupported }

func (d *dummyDesktop) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *dummyDesktop) SetName(name string) error {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
	return nil
}

func (d *dummyDesktop) HasWindow(w *window.Window) bool {
	return w.IsAlive()
}

func (d *dummyDesktop) MoveWindow(*window.Window) error {
	return nil
}

func (d *dummyDesktop) Events() *DesktopEvents {
	return &d.events
}

func (d *dummyDesktop) String() string {
	return "DummyDesktop{current}"
}
