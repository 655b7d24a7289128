package vdesktop

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Retrying wraps a Service and retries calls that fail because the shell
// restarted or the method is not available yet. Between attempts it waits
// and reconnects. Other errors are returned immediately.
type Retrying struct {
	svc      Service
	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

var _ Service = (*Retrying)(nil)

// NewRetrying wraps svc. attempts below one are treated as one.
func NewRetrying(svc Service, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{svc: svc, attempts: attempts, backoff: backoff, sleep: time.Sleep}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrServerUnavailable) ||
		errors.Is(err, ErrCallFailed) ||
		errors.Is(err, ErrNotImplemented)
}

func retry[T any](r *Retrying, op string, fn func() (T, error)) (T, error) {
	var (
		val T
		err error
	)
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			logger.WithComponent("vdesktop").Warn().
				Err(err).
				Str("op", op).
				Int("attempt", i+1).
				Msg("Desktop service call failed, reconnecting")
			r.sleep(r.backoff)
			if cerr := r.svc.Connect(); cerr != nil {
				err = cerr
				if !isRetryable(cerr) {
					return val, cerr
				}
				continue
			}
		}
		val, err = fn()
		if err == nil || !isRetryable(err) {
			return val, err
		}
	}
	return val, err
}

func retry0(r *Retrying, op string, fn func() error) error {
	_, err := retry(r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *Retrying) Connect() error {
	return r.svc.Connect()
}

func (r *Retrying) CurrentDesktopIndex() (int, error) {
	return retry(r, "CurrentDesktopIndex", r.svc.CurrentDesktopIndex)
}

func (r *Retrying) CurrentDesktopID() (uuid.UUID, error) {
	return retry(r, "CurrentDesktopID", r.svc.CurrentDesktopID)
}

func (r *Retrying) DesktopCount() (int, error) {
	return retry(r, "DesktopCount", r.svc.DesktopCount)
}

func (r *Retrying) Desktops() ([]Descriptor, error) {
	return retry(r, "Desktops", r.svc.Desktops)
}

func (r *Retrying) DesktopByIndex(index int) (Descriptor, error) {
	return retry(r, "DesktopByIndex", func() (Descriptor, error) {
		return r.svc.DesktopByIndex(index)
	})
}

func (r *Retrying) DesktopIndex(d Descriptor) (int, error) {
	return retry(r, "DesktopIndex", func() (int, error) {
		return r.svc.DesktopIndex(d)
	})
}

func (r *Retrying) DesktopName(d Descriptor) (string, error) {
	return retry(r, "DesktopName", func() (string, error) {
		return r.svc.DesktopName(d)
	})
}

func (r *Retrying) SwitchToDesktop(d Descriptor) error {
	return retry0(r, "SwitchToDesktop", func() error {
		return r.svc.SwitchToDesktop(d)
	})
}

func (r *Retrying) MoveToDesktop(h native.Handle, d Descriptor) error {
	return retry0(r, "MoveToDesktop", func() error {
		return r.svc.MoveToDesktop(h, d)
	})
}

func (r *Retrying) IsWindowPinned(h native.Handle) (bool, error) {
	return retry(r, "IsWindowPinned", func() (bool, error) {
		return r.svc.IsWindowPinned(h)
	})
}

func (r *Retrying) IsWindowOnCurrentDesktop(h native.Handle) (bool, error) {
	return retry(r, "IsWindowOnCurrentDesktop", func() (bool, error) {
		return r.svc.IsWindowOnCurrentDesktop(h)
	})
}

func (r *Retrying) HasWindow(d Descriptor, h native.Handle) (bool, error) {
	return retry(r, "HasWindow", func() (bool, error) {
		return r.svc.HasWindow(d, h)
	})
}

func (r *Retrying) IsCurrentDesktop(d Descriptor) (bool, error) {
	return retry(r, "IsCurrentDesktop", func() (bool, error) {
		return r.svc.IsCurrentDesktop(d)
	})
}

// NotifyChanges forwards to the wrapped service when it can push changes.
func (r *Retrying) NotifyChanges(fn func()) (stop func()) {
	if n, ok := r.svc.(ChangeNotifier); ok {
		return n.NotifyChanges(fn)
	}
	return func() {}
}
