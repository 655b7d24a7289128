//go:build linux

package platform

import (
	"fmt"

	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/native/x11"
)

// Open connects to the X server named by $DISPLAY. Wayland sessions are
// served through XWayland.
func Open() (native.System, error) {
	sys, err := x11.New()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return sys, nil
}
