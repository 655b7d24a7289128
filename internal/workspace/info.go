package workspace

import (
	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
)

// WindowInfo is a point-in-time copy of a window's cached state.
type WindowInfo struct {
	Handle  native.Handle `json:"handle"`
	Title   string        `json:"title"`
	Bounds  geom.Rect     `json:"bounds"`
	State   window.State  `json:"state"`
	Topmost bool          `json:"topmost"`
	Focused bool          `json:"focused"`
}

// DisplayInfo is a point-in-time copy of a display.
type DisplayInfo struct {
	DeviceID    string    `json:"device_id"`
	Bounds      geom.Rect `json:"bounds"`
	WorkArea    geom.Rect `json:"work_area"`
	Scaling     float64   `json:"scaling"`
	RefreshRate int       `json:"refresh_rate"`
	Primary     bool      `json:"primary"`
}

// DesktopInfo is a point-in-time copy of a virtual desktop.
type DesktopInfo struct {
	ID      uuid.UUID `json:"id"`
	Index   int       `json:"index"`
	Name    string    `json:"name"`
	Current bool      `json:"current"`
}

func DescribeWindow(w *window.Window) *WindowInfo {
	if w == nil {
		return nil
	}
	return &WindowInfo{
		Handle:  w.Handle(),
		Title:   w.Title(),
		Bounds:  w.Position(),
		State:   w.State(),
		Topmost: w.IsTopmost(),
		Focused: w.IsFocused(),
	}
}

// DescribeDisplay copies d; primary is the manager's current primary
// display.
func DescribeDisplay(d, primary *display.Display) *DisplayInfo {
	if d == nil {
		return nil
	}
	return &DisplayInfo{
		DeviceID:    d.DeviceID(),
		Bounds:      d.Bounds(),
		WorkArea:    d.WorkArea(),
		Scaling:     d.Scaling(),
		RefreshRate: d.RefreshRate(),
		Primary:     d == primary,
	}
}

// DescribeDesktop copies d. A removed desktop keeps its ID only.
func DescribeDesktop(d vdesktop.Desktop) *DesktopInfo {
	if d == nil {
		return nil
	}
	if !d.IsAlive() {
		return &DesktopInfo{ID: d.ID(), Index: -1}
	}
	return &DesktopInfo{
		ID:      d.ID(),
		Index:   d.Index(),
		Name:    d.Name(),
		Current: d.IsCurrent(),
	}
}
