package vdesktop

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/window"
)

// currentLookupThreshold is the duration above which resolving the current
// desktop is logged.
const currentLookupThreshold = 15 * time.Millisecond

// CurrentIDSource is a fast alternative answer to "which desktop is
// current", such as the shell's registry value. It returns uuid.Nil when it
// has no answer.
type CurrentIDSource func() uuid.UUID

// ServiceManager is the Manager backed by a Service.
type ServiceManager struct {
	svc       Service
	currentID CurrentIDSource
	events    ManagerEvents

	mu       sync.Mutex
	desktops []*VirtualDesktop
	current  int
}

var (
	_ Manager        = (*ServiceManager)(nil)
	_ ChangeNotifier = (*ServiceManager)(nil)
)

// NewServiceManager loads the desktop list from svc. currentID may be nil.
func NewServiceManager(svc Service, currentID CurrentIDSource) (*ServiceManager, error) {
	descs, err := svc.Desktops()
	if err != nil {
		return nil, fmt.Errorf("list desktops: %w", err)
	}
	current, err := svc.CurrentDesktopIndex()
	if err != nil {
		return nil, fmt.Errorf("current desktop: %w", err)
	}

	m := &ServiceManager{svc: svc, current: current}
	for i, d := range descs {
		m.desktops = append(m.desktops, newVirtualDesktop(m, d, i))
	}
	m.currentID = m.pickCurrentSource(currentID)

	logger.WithComponent("vdesktop").Info().
		Int("count", len(m.desktops)).
		Int("current", current).
		Msg("Virtual desktops loaded")
	return m, nil
}

// pickCurrentSource keeps src only if it agrees with the service right now.
func (m *ServiceManager) pickCurrentSource(src CurrentIDSource) CurrentIDSource {
	if src == nil {
		return nil
	}
	want, err := m.svc.CurrentDesktopID()
	if err != nil || src() != want {
		logger.WithComponent("vdesktop").Debug().Msg("Current desktop source disagrees with the service, ignoring it")
		return nil
	}
	return src
}

func (m *ServiceManager) CanManageVirtualDesktops() bool {
	return true
}

func (m *ServiceManager) Events() *ManagerEvents {
	return &m.events
}

func (m *ServiceManager) Desktops() []Desktop {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Desktop, len(m.desktops))
	for i, d := range m.desktops {
		out[i] = d
	}
	return out
}

func (m *ServiceManager) contains(d *VirtualDesktop) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.desktops {
		if o == d {
			return true
		}
	}
	return false
}

// CurrentDesktop resolves the current desktop. If the answer names a
// desktop the list does not know yet, the last recorded current desktop is
// returned.
func (m *ServiceManager) CurrentDesktop() Desktop {
	timer := eventloop.StartBlockTimer()
	id := m.lookupCurrentID()
	timer.LogIfExceeded(currentLookupThreshold, "current desktop lookup")

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.desktops) == 0 {
		return nil
	}
	if id != uuid.Nil {
		for _, d := range m.desktops {
			if d.ID() == id {
				return d
			}
		}
	}
	return m.desktops[min(m.current, len(m.desktops)-1)]
}

func (m *ServiceManager) lookupCurrentID() uuid.UUID {
	if m.currentID != nil {
		if id := m.currentID(); id != uuid.Nil {
			return id
		}
	}
	id, err := m.svc.CurrentDesktopID()
	if err != nil {
		return uuid.Nil
	}
	return id
}

// NotifyChanges calls fn when the service reports a desktop change. It is a
// no-op for services that can only be polled.
func (m *ServiceManager) NotifyChanges(fn func()) (stop func()) {
	if n, ok := m.svc.(ChangeNotifier); ok {
		return n.NotifyChanges(fn)
	}
	return func() {}
}

func (m *ServiceManager) CreateDesktop() (Desktop, error) {
	return nil, ErrNotSupported
}

// IsWindowPinned reports whether w shows on every desktop. Windows unknown
// to the service are not pinned.
func (m *ServiceManager) IsWindowPinned(w *window.Window) bool {
	pinned, err := m.svc.IsWindowPinned(w.Handle())
	if err != nil {
		if !isElementNotFound(err) {
			logger.WithComponent("vdesktop").Debug().Err(err).Stringer("hwnd", w.Handle()).Msg("Pinned check failed")
		}
		return false
	}
	return pinned
}

func (m *ServiceManager) PinWindow(*window.Window) error {
	return ErrNotSupported
}

func (m *ServiceManager) UnpinWindow(*window.Window) error {
	return ErrNotSupported
}

// IsNotOnCurrentDesktop treats windows unknown to the service as living
// elsewhere.
func (m *ServiceManager) IsNotOnCurrentDesktop(h native.Handle) bool {
	on, err := m.svc.IsWindowOnCurrentDesktop(h)
	if err != nil {
		if isElementNotFound(err) {
			return true
		}
		logger.WithComponent("vdesktop").Debug().Err(err).Stringer("hwnd", h).Msg("Current desktop check failed")
		return false
	}
	return !on
}

// CheckVirtualDesktopChanges shrinks or grows the list to the backend's
// desktop count, then compares the current index. Listener panics and
// backend errors during the shrink and grow are collected and returned
// after the current desktop has been reconciled.
func (m *ServiceManager) CheckVirtualDesktopChanges() error {
	count, err := m.svc.DesktopCount()
	if err != nil {
		return fmt.Errorf("desktop count: %w", err)
	}

	var errs error
	var removed, added []*VirtualDesktop

	m.mu.Lock()
	if old := len(m.desktops); old > count {
		removed = append(removed, m.desktops[count:]...)
		m.desktops = m.desktops[:count:count]
	} else {
		for i := old; i < count; i++ {
			desc, err := m.svc.DesktopByIndex(i)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("desktop %d: %w", i, err))
				break
			}
			d := newVirtualDesktop(m, desc, i)
			m.desktops = append(m.desktops, d)
			added = append(added, d)
		}
	}
	m.mu.Unlock()

	for _, d := range removed {
		errs = multierr.Append(errs, guard(d.onRemoved))
		errs = multierr.Append(errs, guard(func() { m.events.DesktopRemoved.Fire(d) }))
	}
	for _, d := range added {
		errs = multierr.Append(errs, guard(func() { m.events.DesktopAdded.Fire(d) }))
	}

	if len(removed) > 0 || len(added) > 0 {
		logger.WithComponent("vdesktop").Info().
			Int("added", len(added)).
			Int("removed", len(removed)).
			Int("count", count).
			Msg("Virtual desktop list changed")
	}

	return multierr.Append(errs, m.checkCurrent())
}

func (m *ServiceManager) checkCurrent() error {
	idx, err := m.svc.CurrentDesktopIndex()
	if err != nil {
		return fmt.Errorf("current desktop: %w", err)
	}

	m.mu.Lock()
	old := m.current
	if idx == old {
		m.mu.Unlock()
		return nil
	}
	m.current = idx
	var change CurrentChange
	if old >= 0 && old < len(m.desktops) {
		change.Old = m.desktops[old]
	}
	if idx >= 0 && idx < len(m.desktops) {
		change.New = m.desktops[idx]
	}
	m.mu.Unlock()

	logger.WithComponent("vdesktop").Debug().Int("from", old).Int("to", idx).Msg("Current desktop changed")
	return guard(func() { m.events.CurrentDesktopChanged.Fire(change) })
}

// guard runs fn and turns a panic into an error.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vdesktop listener panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// VirtualDesktop is a desktop of a ServiceManager.
type VirtualDesktop struct {
	manager *ServiceManager
	desc    Descriptor
	// index is the position at creation, used when the service cannot
	// answer.
	index  int
	events DesktopEvents
}

var _ Desktop = (*VirtualDesktop)(nil)

func newVirtualDesktop(m *ServiceManager, desc Descriptor, index int) *VirtualDesktop {
	return &VirtualDesktop{manager: m, desc: desc, index: index}
}

func (d *VirtualDesktop) ID() uuid.UUID {
	return d.desc.ID
}

func (d *VirtualDesktop) Descriptor() Descriptor {
	return d.desc
}

func (d *VirtualDesktop) Index() int {
	idx, err := d.manager.svc.DesktopIndex(d.desc)
	if err != nil || idx < 0 {
		return d.index
	}
	return idx
}

func (d *VirtualDesktop) Name() string {
	name, err := d.manager.svc.DesktopName(d.desc)
	if err != nil || name == "" {
		return fmt.Sprintf("Desktop %d", d.Index()+1)
	}
	return name
}

func (d *VirtualDesktop) IsCurrent() bool {
	current, err := d.manager.svc.IsCurrentDesktop(d.desc)
	return err == nil && current
}

// IsAlive reports whether the desktop is still in its manager's list.
func (d *VirtualDesktop) IsAlive() bool {
	return d.manager.contains(d)
}

// HasWindow reports whether w is on this desktop or pinned to all of them.
func (d *VirtualDesktop) HasWindow(w *window.Window) bool {
	svc := d.manager.svc
	has, err := svc.HasWindow(d.desc, w.Handle())
	if err != nil {
		return false
	}
	if has {
		return true
	}
	pinned, err := svc.IsWindowPinned(w.Handle())
	return err == nil && pinned
}

func (d *VirtualDesktop) SwitchTo() error {
	return d.manager.svc.SwitchToDesktop(d.desc)
}

// MoveWindow moves w to this desktop.
func (d *VirtualDesktop) MoveWindow(w *window.Window) error {
	if err := d.manager.svc.MoveToDesktop(w.Handle(), d.desc); err != nil {
		if !w.IsAlive() {
			return fmt.Errorf("%w: %s: %v", window.ErrInvalidWindow, w.Handle(), err)
		}
		return err
	}
	return nil
}

func (d *VirtualDesktop) SetName(string) error {
	return ErrNotSupported
}

func (d *VirtualDesktop) Remove() error {
	return ErrNotSupported
}

func (d *VirtualDesktop) Events() *DesktopEvents {
	return &d.events
}

func (d *VirtualDesktop) String() string {
	return fmt.Sprintf("VirtualDesktop{%s %q}", d.desc.ID, d.Name())
}

func (d *VirtualDesktop) onRemoved() {
	defer d.events.Removed.Clear()
	d.events.Removed.Fire(d)
}
