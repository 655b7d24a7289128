//go:build linux

package vdesktop

import (
	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Open returns a KWin-backed manager when KWin is on the session bus, an
// EWMH manager when sys reads the hints, and the Dummy manager otherwise.
func Open(sys native.System, cfg config.VirtualDesktopConfig) Manager {
	log := logger.WithComponent("vdesktop")
	hints, _ := sys.(EWMH)

	if svc, err := newKWinService(hints); err == nil {
		m, err := NewServiceManager(NewRetrying(svc, cfg.RetryAttempts, cfg.RetryBackoff), nil)
		if err == nil {
			log.Info().Str("backend", "kwin").Msg("Virtual desktop backend ready")
			return m
		}
		log.Warn().Err(err).Msg("KWin desktop service failed")
	} else {
		log.Debug().Err(err).Msg("KWin desktop service unavailable")
	}

	if hints != nil {
		m, err := NewServiceManager(NewEWMHService(hints), nil)
		if err == nil {
			log.Info().Str("backend", "ewmh").Msg("Virtual desktop backend ready")
			return m
		}
		log.Warn().Err(err).Msg("EWMH desktop hints unavailable")
	}

	log.Info().Msg("No virtual desktop backend, using a single desktop")
	return NewDummy()
}
