package workspace

import (
	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/window"
)

// FocusChange carries the newly focused and the previously focused window.
// Either may be nil.
type FocusChange struct {
	New *window.Window
	Old *window.Window
}

// CursorChange carries the new and previous cursor location.
type CursorChange struct {
	New geom.Point
	Old geom.Point
}

// Events are the workspace-wide listener registries. Every event except
// title changes fires on the processing loop; listeners must not block it.
type Events struct {
	// WindowManaging fires for each window already visible when the
	// workspace opens. WindowAdded fires for windows that become visible
	// later.
	WindowManaging  event.Registry[*window.Window]
	WindowAdded     event.Registry[*window.Window]
	WindowRemoved   event.Registry[*window.Window]
	WindowDestroyed event.Registry[*window.Window]

	FocusedWindowChanged  event.Registry[FocusChange]
	CursorLocationChanged event.Registry[CursorChange]

	// UnhandledError receives processing errors that are not expected
	// races. Without a listener such an error panics the process.
	UnhandledError event.Registry[error]
}
