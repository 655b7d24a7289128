package eventloop

import (
	"time"

	"github.com/bryanchriswhite/winman/internal/logger"
)

// BlockTimer measures a synchronous block and reports it when slow
type BlockTimer struct {
	start time.Time
}

// StartBlockTimer starts measuring from now
func StartBlockTimer() BlockTimer {
	return BlockTimer{start: time.Now()}
}

// Elapsed returns the time since the timer started
func (t BlockTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// LogIfExceeded logs a warning when the block took longer than threshold.
// It reports whether the threshold was exceeded.
func (t BlockTimer) LogIfExceeded(threshold time.Duration, msg string) bool {
	elapsed := t.Elapsed()
	if elapsed <= threshold {
		return false
	}
	logger.WithComponent("eventloop").Warn().
		Dur("elapsed", elapsed).
		Dur("threshold", threshold).
		Msg(msg)
	return true
}
