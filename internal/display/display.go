// Package display tracks the monitors attached to the desktop and reports
// changes to their set and geometry.
package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
)

// ErrInvalidDisplay means the monitor behind a Display is gone.
var ErrInvalidDisplay = errors.New("display: invalid display")

// RectChange carries a new and previous rectangle of a display.
type RectChange struct {
	Display *Display
	New     geom.Rect
	Old     geom.Rect
}

type ScalingChange struct {
	Display *Display
	New     float64
	Old     float64
}

type RefreshRateChange struct {
	Display *Display
	New     int
	Old     int
}

// Events are the per-display listener registries. They are cleared once the
// display is removed.
type Events struct {
	Removed            event.Registry[*Display]
	WorkAreaChanged    event.Registry[RectChange]
	BoundsChanged      event.Registry[RectChange]
	ScalingChanged     event.Registry[ScalingChange]
	RefreshRateChanged event.Registry[RefreshRateChange]
}

func (e *Events) clear() {
	e.Removed.Clear()
	e.WorkAreaChanged.Clear()
	e.BoundsChanged.Clear()
	e.ScalingChanged.Clear()
	e.RefreshRateChanged.Clear()
}

// Display is one monitor, identified by its device id. The OS monitor
// handle may change across display reconfigurations; the device id does not.
type Display struct {
	deviceID string
	events   Events

	mu          sync.Mutex
	monitor     native.Monitor
	workArea    geom.Rect
	bounds      geom.Rect
	scaling     float64
	refreshRate int
}

func newDisplay(m native.Monitor, info native.MonitorInfo) *Display {
	return &Display{
		deviceID:    info.DeviceID,
		monitor:     m,
		workArea:    info.WorkArea,
		bounds:      info.Bounds,
		scaling:     info.Scaling,
		refreshRate: info.RefreshRate,
	}
}

func (d *Display) DeviceID() string {
	return d.deviceID
}

// Monitor returns the current OS monitor handle.
func (d *Display) Monitor() native.Monitor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.monitor
}

func (d *Display) setMonitor(m native.Monitor) {
	d.mu.Lock()
	d.monitor = m
	d.mu.Unlock()
}

// WorkArea is the part of the display not covered by task bars and docks.
func (d *Display) WorkArea() geom.Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workArea
}

func (d *Display) Bounds() geom.Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bounds
}

// Scaling is the effective DPI divided by 96.
func (d *Display) Scaling() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scaling
}

// RefreshRate is in hertz.
func (d *Display) RefreshRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshRate
}

func (d *Display) Events() *Events {
	return &d.events
}

func (d *Display) String() string {
	return fmt.Sprintf("Display{%s}", d.deviceID)
}

// apply stores info and fires one event per field that changed.
func (d *Display) apply(info native.MonitorInfo) {
	d.mu.Lock()
	oldWork, oldBounds := d.workArea, d.bounds
	oldScaling, oldRate := d.scaling, d.refreshRate
	d.workArea = info.WorkArea
	d.bounds = info.Bounds
	d.scaling = info.Scaling
	d.refreshRate = info.RefreshRate
	d.mu.Unlock()

	if oldWork != info.WorkArea {
		d.events.WorkAreaChanged.Fire(RectChange{Display: d, New: info.WorkArea, Old: oldWork})
	}
	if oldBounds != info.Bounds {
		d.events.BoundsChanged.Fire(RectChange{Display: d, New: info.Bounds, Old: oldBounds})
	}
	if oldScaling != info.Scaling {
		d.events.ScalingChanged.Fire(ScalingChange{Display: d, New: info.Scaling, Old: oldScaling})
	}
	if oldRate != info.RefreshRate {
		d.events.RefreshRateChanged.Fire(RefreshRateChange{Display: d, New: info.RefreshRate, Old: oldRate})
	}
}

func (d *Display) onRemoved() {
	defer d.events.clear()
	d.events.Removed.Fire(d)
}
