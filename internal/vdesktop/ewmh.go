package vdesktop

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/native"
)

// WindowDesktops answers per-window desktop questions that KWin does not
// expose over D-Bus. The X11 binding provides it from _NET_WM_DESKTOP.
type WindowDesktops interface {
	// WindowDesktop returns the zero-based desktop index of h. sticky is
	// set for windows shown on all desktops.
	WindowDesktop(h native.Handle) (index int, sticky bool, err error)
}

// EWMH is the desktop part of the Extended Window Manager Hints, as read
// from the root window by an X11 binding.
type EWMH interface {
	WindowDesktops

	NumberOfDesktops() (int, error)
	CurrentDesktop() (int, error)
	DesktopNames() ([]string, error)
	SetCurrentDesktop(index int) error
	MoveWindowToDesktop(h native.Handle, index int) error
}

// ewmhService adapts EWMH to Service. EWMH desktops have no identity beyond
// their position, so IDs are derived from the index.
type ewmhService struct {
	hints EWMH
}

var _ Service = (*ewmhService)(nil)

// NewEWMHService returns a Service over an EWMH-compliant window manager.
func NewEWMHService(hints EWMH) Service {
	return &ewmhService{hints: hints}
}

func ewmhID(index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ewmh-desktop:"+strconv.Itoa(index)))
}

func (s *ewmhService) indexOf(d Descriptor) (int, error) {
	count, err := s.hints.NumberOfDesktops()
	if err != nil {
		return -1, err
	}
	for i := 0; i < count; i++ {
		if ewmhID(i) == d.ID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: desktop %s", ErrElementNotFound, d.ID)
}

func (s *ewmhService) Connect() error {
	return nil
}

func (s *ewmhService) CurrentDesktopIndex() (int, error) {
	return s.hints.CurrentDesktop()
}

func (s *ewmhService) CurrentDesktopID() (uuid.UUID, error) {
	idx, err := s.hints.CurrentDesktop()
	if err != nil {
		return uuid.Nil, err
	}
	return ewmhID(idx), nil
}

func (s *ewmhService) DesktopCount() (int, error) {
	return s.hints.NumberOfDesktops()
}

func (s *ewmhService) Desktops() ([]Descriptor, error) {
	count, err := s.hints.NumberOfDesktops()
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, count)
	for i := range out {
		out[i] = Descriptor{ID: ewmhID(i)}
	}
	return out, nil
}

func (s *ewmhService) DesktopByIndex(index int) (Descriptor, error) {
	count, err := s.hints.NumberOfDesktops()
	if err != nil {
		return Descriptor{}, err
	}
	if index < 0 || index >= count {
		return Descriptor{}, fmt.Errorf("%w: desktop index %d", ErrElementNotFound, index)
	}
	return Descriptor{ID: ewmhID(index)}, nil
}

func (s *ewmhService) DesktopIndex(d Descriptor) (int, error) {
	return s.indexOf(d)
}

// DesktopName returns "" for desktops beyond _NET_DESKTOP_NAMES.
func (s *ewmhService) DesktopName(d Descriptor) (string, error) {
	idx, err := s.indexOf(d)
	if err != nil {
		return "", err
	}
	names, err := s.hints.DesktopNames()
	if err != nil || idx >= len(names) {
		return "", err
	}
	return names[idx], nil
}

func (s *ewmhService) SwitchToDesktop(d Descriptor) error {
	idx, err := s.indexOf(d)
	if err != nil {
		return err
	}
	return s.hints.SetCurrentDesktop(idx)
}

func (s *ewmhService) MoveToDesktop(h native.Handle, d Descriptor) error {
	idx, err := s.indexOf(d)
	if err != nil {
		return err
	}
	return s.hints.MoveWindowToDesktop(h, idx)
}

func (s *ewmhService) IsWindowPinned(h native.Handle) (bool, error) {
	_, sticky, err := s.hints.WindowDesktop(h)
	return sticky, err
}

func (s *ewmhService) IsWindowOnCurrentDesktop(h native.Handle) (bool, error) {
	idx, sticky, err := s.hints.WindowDesktop(h)
	if err != nil || sticky {
		return sticky, err
	}
	current, err := s.hints.CurrentDesktop()
	if err != nil {
		return false, err
	}
	return idx == current, nil
}

func (s *ewmhService) HasWindow(d Descriptor, h native.Handle) (bool, error) {
	want, err := s.indexOf(d)
	if err != nil {
		return false, err
	}
	idx, sticky, err := s.hints.WindowDesktop(h)
	if err != nil {
		return false, err
	}
	return sticky || idx == want, nil
}

func (s *ewmhService) IsCurrentDesktop(d Descriptor) (bool, error) {
	idx, err := s.indexOf(d)
	if err != nil {
		return false, err
	}
	current, err := s.hints.CurrentDesktop()
	if err != nil {
		return false, err
	}
	return idx == current, nil
}
