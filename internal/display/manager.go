package display

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// PrimaryChange carries the new and previous primary display. Either may be
// nil.
type PrimaryChange struct {
	New *Display
	Old *Display
}

// VirtualBoundsChange carries the new and previous bounds of the virtual
// screen.
type VirtualBoundsChange struct {
	New geom.Rect
	Old geom.Rect
}

// ManagerEvents are the manager-wide listener registries.
type ManagerEvents struct {
	Added                       event.Registry[*Display]
	Removed                     event.Registry[*Display]
	PrimaryChanged              event.Registry[PrimaryChange]
	VirtualDisplayBoundsChanged event.Registry[VirtualBoundsChange]
}

// Manager keeps the set of displays in sync with the OS.
type Manager struct {
	sys native.MonitorAPI
	cfg config.DisplayConfig

	events ManagerEvents

	mu            sync.Mutex
	displays      map[string]*Display
	primary       *Display
	virtualBounds geom.Rect
}

type monitorEntry struct {
	monitor native.Monitor
	info    native.MonitorInfo
}

// NewManager enumerates the current monitors.
func NewManager(sys native.MonitorAPI, cfg config.DisplayConfig) (*Manager, error) {
	m := &Manager{
		sys:      sys,
		cfg:      cfg,
		displays: make(map[string]*Display),
	}
	entries, err := m.enumerate(true)
	if err != nil {
		return nil, err
	}
	for id, e := range entries {
		m.displays[id] = newDisplay(e.monitor, e.info)
	}
	m.primary = m.findPrimaryLocked()
	m.virtualBounds = sys.VirtualScreen()

	logger.WithComponent("display").Info().
		Int("count", len(m.displays)).
		Str("virtual_bounds", m.virtualBounds.String()).
		Msg("Displays enumerated")
	return m, nil
}

func (m *Manager) Events() *ManagerEvents {
	return &m.events
}

// Displays returns the current displays ordered by device id.
func (m *Manager) Displays() []*Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []*Display {
	out := make([]*Display, 0, len(m.displays))
	for _, d := range m.displays {
		out = append(out, d)
	}
	sortByID(out)
	return out
}

func sortByID(ds []*Display) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].deviceID < ds[j].deviceID })
}

// Find returns the display with the given device id.
func (m *Manager) Find(deviceID string) (*Display, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.displays[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDisplay, deviceID)
	}
	return d, nil
}

// PrimaryDisplay returns the display whose top-left corner is the origin.
// Without one, the first display by device id is primary by elimination.
// It is nil only when there are no displays.
func (m *Manager) PrimaryDisplay() *Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primary
}

// Bounds lists the bounds of every display.
func (m *Manager) Bounds() []geom.Rect {
	displays := m.Displays()
	out := make([]geom.Rect, len(displays))
	for i, d := range displays {
		out[i] = d.Bounds()
	}
	return out
}

// VirtualDisplayBounds is the bounding box of all displays.
func (m *Manager) VirtualDisplayBounds() geom.Rect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.virtualBounds
}

func (m *Manager) findPrimaryLocked() *Display {
	sorted := m.sortedLocked()
	for _, d := range sorted {
		if d.Bounds().TopLeft() == (geom.Point{}) {
			return d
		}
	}
	if len(sorted) > 0 {
		return sorted[0]
	}
	return nil
}

// enumerate lists the monitors keyed by device id. A zero-monitor result
// is usually a driver or session hiccup, so with retry set it is retried
// before being believed.
func (m *Manager) enumerate(retry bool) (map[string]monitorEntry, error) {
	log := logger.WithComponent("display")

	for attempt := 0; ; attempt++ {
		entries, err := m.enumerateOnce()
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 || !retry || attempt >= m.cfg.EmptyRetries {
			if len(entries) == 0 && retry {
				log.Warn().Int("attempts", attempt+1).Msg("No monitors reported, accepting empty display set")
			}
			return entries, nil
		}

		backoff := m.cfg.EmptyBackoff * time.Duration(attempt+1)
		log.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Monitor enumeration returned nothing, retrying")
		time.Sleep(backoff)
	}
}

func (m *Manager) enumerateOnce() (map[string]monitorEntry, error) {
	monitors, err := m.sys.EnumMonitors()
	if err != nil {
		return nil, fmt.Errorf("enumerate monitors: %w", err)
	}
	entries := make(map[string]monitorEntry, len(monitors))
	for _, mon := range monitors {
		info, err := m.sys.MonitorInfo(mon)
		if err != nil {
			// Unplugged between enumeration and query.
			if errors.Is(err, native.ErrInvalidMonitor) {
				continue
			}
			return nil, fmt.Errorf("monitor %#x: %w", uintptr(mon), err)
		}
		entries[info.DeviceID] = monitorEntry{monitor: mon, info: info}
	}
	return entries, nil
}

// OnDisplayChange re-enumerates the monitors and reconciles the display
// set. Added fires first, then Removed, then PrimaryChanged. Removal and
// the primary update run even if an Added listener panics.
//
// An empty enumeration is only retried while displays are known; with none
// cached there is nothing it could wrongly remove.
func (m *Manager) OnDisplayChange() error {
	m.mu.Lock()
	known := len(m.displays) > 0
	m.mu.Unlock()

	entries, err := m.enumerate(known)
	if err != nil {
		return err
	}

	var added, removed []*Display
	m.mu.Lock()
	for id, e := range entries {
		if d, ok := m.displays[id]; ok {
			d.setMonitor(e.monitor)
			continue
		}
		d := newDisplay(e.monitor, e.info)
		m.displays[id] = d
		added = append(added, d)
	}
	for id, d := range m.displays {
		if _, ok := entries[id]; !ok {
			delete(m.displays, id)
			removed = append(removed, d)
		}
	}
	oldPrimary := m.primary
	m.primary = m.findPrimaryLocked()
	newPrimary := m.primary
	m.mu.Unlock()

	sortByID(added)
	sortByID(removed)

	if len(added) > 0 || len(removed) > 0 {
		logger.WithComponent("display").Info().
			Int("added", len(added)).
			Int("removed", len(removed)).
			Msg("Display set changed")
	}

	defer m.checkVirtualBounds()
	m.fireSetChanges(added, removed, newPrimary, oldPrimary)
	return nil
}

func (m *Manager) fireSetChanges(added, removed []*Display, newPrimary, oldPrimary *Display) {
	defer func() {
		if newPrimary != oldPrimary {
			m.events.PrimaryChanged.Fire(PrimaryChange{New: newPrimary, Old: oldPrimary})
		}
	}()
	defer func() {
		for _, d := range removed {
			m.fireRemoved(d)
		}
	}()
	for _, d := range added {
		m.events.Added.Fire(d)
	}
}

func (m *Manager) fireRemoved(d *Display) {
	defer m.events.Removed.Fire(d)
	d.onRemoved()
}

// OnSettingChange re-reads the geometry, scaling and refresh rate of every
// known display without changing the set. A monitor that vanished is
// skipped; the next display change removes it.
func (m *Manager) OnSettingChange() error {
	var errs error
	for _, d := range m.Displays() {
		info, err := m.sys.MonitorInfo(d.Monitor())
		if err != nil {
			if errors.Is(err, native.ErrInvalidMonitor) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d, err))
			continue
		}
		if info.DeviceID != d.deviceID {
			// The handle was recycled for another device.
			continue
		}
		d.apply(info)
	}
	m.checkVirtualBounds()
	return errs
}

func (m *Manager) checkVirtualBounds() {
	bounds := m.sys.VirtualScreen()

	m.mu.Lock()
	old := m.virtualBounds
	m.virtualBounds = bounds
	m.mu.Unlock()

	if old != bounds {
		m.events.VirtualDisplayBoundsChanged.Fire(VirtualBoundsChange{New: bounds, Old: old})
	}
}
