// Package x11 binds the tracking core to an EWMH-compliant X11 window
// manager. X11 concepts are translated onto the Win32 vocabulary of package
// native: window types become extended styles, _NET_WM_STATE becomes show
// commands and property changes become WinEvents.
package x11

import (
	"sort"

	"github.com/bryanchriswhite/winman/internal/native"
)

// Atom names used by the binding.
const (
	netActiveWindow    = "_NET_ACTIVE_WINDOW"
	netClientList      = "_NET_CLIENT_LIST"
	netClientStacking  = "_NET_CLIENT_LIST_STACKING"
	netCurrentDesktop  = "_NET_CURRENT_DESKTOP"
	netNumberDesktops  = "_NET_NUMBER_OF_DESKTOPS"
	netDesktopNames    = "_NET_DESKTOP_NAMES"
	netWorkarea        = "_NET_WORKAREA"
	netWmName          = "_NET_WM_NAME"
	netWmState         = "_NET_WM_STATE"
	netWmDesktop       = "_NET_WM_DESKTOP"
	netFrameExtents    = "_NET_FRAME_EXTENTS"
	wmName             = "WM_NAME"
	wmState            = "WM_STATE"
	wmChangeState      = "WM_CHANGE_STATE"
	stateHidden        = "_NET_WM_STATE_HIDDEN"
	stateMaximizedVert = "_NET_WM_STATE_MAXIMIZED_VERT"
	stateMaximizedHorz = "_NET_WM_STATE_MAXIMIZED_HORZ"
	stateFullscreen    = "_NET_WM_STATE_FULLSCREEN"
	stateAbove         = "_NET_WM_STATE_ABOVE"
	stateSkipTaskbar   = "_NET_WM_STATE_SKIP_TASKBAR"

	actionMinimize     = "_NET_WM_ACTION_MINIMIZE"
	actionMaximizeHorz = "_NET_WM_ACTION_MAXIMIZE_HORZ"
	actionMaximizeVert = "_NET_WM_ACTION_MAXIMIZE_VERT"
	actionResize       = "_NET_WM_ACTION_RESIZE"
)

// stickyDesktop is the _NET_WM_DESKTOP value of windows on every desktop.
const stickyDesktop = 0xFFFFFFFF

func has(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// exStyle derives extended window styles from _NET_WM_WINDOW_TYPE and
// _NET_WM_STATE. Windows without a type are normal, or dialogs when they
// are transient for another window.
func exStyle(types, states []string, transient bool) uint32 {
	var style uint32
	switch {
	case len(types) == 0 && transient, has(types, "_NET_WM_WINDOW_TYPE_DIALOG"):
		style = native.WS_EX_WINDOWEDGE
	case len(types) == 0, has(types, "_NET_WM_WINDOW_TYPE_NORMAL"):
		style = native.WS_EX_WINDOWEDGE | native.WS_EX_APPWINDOW
	default:
		style = native.WS_EX_TOOLWINDOW
	}
	if has(states, stateSkipTaskbar) {
		style = style&^native.WS_EX_APPWINDOW | native.WS_EX_TOOLWINDOW
	}
	if has(states, stateAbove) {
		style |= native.WS_EX_TOPMOST
	}
	return style
}

// windowStyle derives window styles from _NET_WM_ALLOWED_ACTIONS. A
// window manager that publishes no actions allows everything.
func windowStyle(actions []string, fixedSize, visible bool) uint32 {
	var style uint32
	if visible {
		style |= native.WS_VISIBLE
	}
	all := len(actions) == 0
	if !fixedSize && (all || has(actions, actionResize)) {
		style |= native.WS_SIZEBOX
	}
	if all || has(actions, actionMinimize) {
		style |= native.WS_MINIMIZEBOX
	}
	if all || (has(actions, actionMaximizeHorz) && has(actions, actionMaximizeVert)) {
		style |= native.WS_MAXIMIZEBOX
	}
	return style
}

// showCmd maps _NET_WM_STATE onto a placement show command.
func showCmd(states []string, iconic bool) native.ShowCmd {
	switch {
	case iconic, has(states, stateHidden):
		return native.SW_SHOWMINIMIZED
	case has(states, stateFullscreen),
		has(states, stateMaximizedVert) && has(states, stateMaximizedHorz):
		return native.SW_SHOWMAXIMIZED
	default:
		return native.SW_SHOWNORMAL
	}
}

// cloaked reports windows on another desktop as hidden by the shell, the
// way the Windows shell cloaks windows of inactive virtual desktops.
func cloaked(windowDesktop, currentDesktop uint) uint32 {
	if windowDesktop == stickyDesktop || windowDesktop == currentDesktop {
		return 0
	}
	return native.DWM_CLOAKED_SHELL
}

// refreshRate computes the vertical refresh in Hz of a RandR mode.
func refreshRate(dotClock uint32, hTotal, vTotal uint16) int {
	if hTotal == 0 || vTotal == 0 {
		return 0
	}
	return int((float64(dotClock)/(float64(hTotal)*float64(vTotal)) + 0.5))
}

// diffClients splits a new _NET_CLIENT_LIST against the previous one.
func diffClients(prev map[native.Handle]bool, next []native.Handle) (created, destroyed []native.Handle, set map[native.Handle]bool) {
	set = make(map[native.Handle]bool, len(next))
	for _, h := range next {
		set[h] = true
		if !prev[h] {
			created = append(created, h)
		}
	}
	for h := range prev {
		if !set[h] {
			destroyed = append(destroyed, h)
		}
	}
	sort.Slice(destroyed, func(i, j int) bool { return destroyed[i] < destroyed[j] })
	return created, destroyed, set
}
