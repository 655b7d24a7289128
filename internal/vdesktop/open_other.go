//go:build !windows && !linux

package vdesktop

import (
	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Open returns the Dummy manager; no desktop backend exists for this OS.
func Open(native.System, config.VirtualDesktopConfig) Manager {
	return NewDummy()
}
