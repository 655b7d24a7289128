package window

import (
	"github.com/bryanchriswhite/winman/internal/native"
)

// IsTopLevelVisible decides whether h is a genuine user-facing application
// window rather than a tool window, child or hidden shell surface. Any OS
// failure counts as not visible.
func IsTopLevelVisible(host VisibilityHost, h native.Handle) bool {
	sys := host.System()

	if !sys.IsWindowVisible(h) {
		return false
	}
	exStyle, ok := topLevelExStyle(sys, h)
	if !ok {
		return false
	}

	checkCloaked := func() bool {
		cloaked, err := sys.Cloaked(h)
		if err != nil {
			return false
		}
		if cloaked == 0 {
			return true
		}
		// Windows on other virtual desktops are shell-cloaked but still
		// tracked.
		if cloaked == native.DWM_CLOAKED_SHELL {
			return host.IsNotOnCurrentDesktop(h)
		}
		return false
	}
	hasTitle := func() bool {
		n, err := sys.TextLength(h)
		return err == nil && n != 0
	}

	if exStyle&native.WS_EX_APPWINDOW != 0 {
		return checkCloaked() && hasTitle()
	}

	hasEdge := exStyle&native.WS_EX_WINDOWEDGE != 0
	topmostOnly := exStyle == native.WS_EX_TOPMOST
	if hasEdge || topmostOnly || exStyle == 0 {
		return checkCloaked() && hasTitle()
	}

	if exStyle&native.WS_EX_ACCEPTFILES != 0 {
		return checkCloaked() && hasTitle()
	}

	return false
}

// IsLikelyTopLevelVisibleSoon is the structural half of IsTopLevelVisible.
// Freshly created windows often finish their style and visibility setup a
// few ticks later; a window passing this check is worth rechecking.
func IsLikelyTopLevelVisibleSoon(host VisibilityHost, h native.Handle) bool {
	exStyle, ok := topLevelExStyle(host.System(), h)
	if !ok {
		return false
	}
	switch {
	case exStyle&native.WS_EX_APPWINDOW != 0,
		exStyle&native.WS_EX_WINDOWEDGE != 0,
		exStyle == native.WS_EX_TOPMOST,
		exStyle == 0,
		exStyle&native.WS_EX_ACCEPTFILES != 0:
		return true
	}
	return false
}

// topLevelExStyle checks that h is a root, non-child, non-tool window and
// returns its extended style.
func topLevelExStyle(sys native.WindowAPI, h native.Handle) (uint32, bool) {
	if sys.RootAncestor(h) != h {
		return 0, false
	}
	style, err := sys.Style(h)
	if err != nil || style&native.WS_CHILD != 0 {
		return 0, false
	}
	exStyle, err := sys.ExStyle(h)
	if err != nil || exStyle&native.WS_EX_TOOLWINDOW != 0 {
		return 0, false
	}
	return exStyle, true
}
