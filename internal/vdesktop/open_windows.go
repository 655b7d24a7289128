//go:build windows

package vdesktop

import (
	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Open returns the desktop manager for the running Windows build, or the
// Dummy manager when the build is unknown or the shell refuses the
// interfaces.
func Open(sys native.System, cfg config.VirtualDesktopConfig) Manager {
	log := logger.WithComponent("vdesktop")
	v := sys.Version()

	layout, ok := Select(cfg.Builds, v)
	if !ok {
		log.Info().Int("build", v.Build).Int("ubr", v.UBR).Msg("No virtual desktop layout for this build, using a single desktop")
		return NewDummy()
	}

	svc, err := newCOMService(layout)
	if err != nil {
		log.Warn().Err(err).Str("layout", layout).Msg("Desktop service unavailable, using a single desktop")
		return NewDummy()
	}

	m, err := NewServiceManager(NewRetrying(svc, cfg.RetryAttempts, cfg.RetryBackoff), registryCurrentDesktopID)
	if err != nil {
		log.Warn().Err(err).Str("layout", layout).Msg("Desktop service failed, using a single desktop")
		return NewDummy()
	}
	log.Info().Int("build", v.Build).Int("ubr", v.UBR).Str("layout", layout).Msg("Virtual desktop backend ready")
	return m
}
