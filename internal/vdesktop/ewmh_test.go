package vdesktop

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bryanchriswhite/winman/internal/native"
)

type fakeHints struct {
	count   int
	current int
	names   []string
	windows map[native.Handle]int
	sticky  map[native.Handle]bool
}

func (f *fakeHints) NumberOfDesktops() (int, error)  { return f.count, nil }
func (f *fakeHints) CurrentDesktop() (int, error)    { return f.current, nil }
func (f *fakeHints) DesktopNames() ([]string, error) { return f.names, nil }

func (f *fakeHints) SetCurrentDesktop(index int) error {
	f.current = index
	return nil
}

func (f *fakeHints) MoveWindowToDesktop(h native.Handle, index int) error {
	f.windows[h] = index
	return nil
}

func (f *fakeHints) WindowDesktop(h native.Handle) (int, bool, error) {
	if f.sticky[h] {
		return 0, true, nil
	}
	idx, ok := f.windows[h]
	if !ok {
		return 0, false, ErrElementNotFound
	}
	return idx, false, nil
}

func TestEWMHService(t *testing.T) {
	hints := &fakeHints{
		count:   3,
		current: 1,
		names:   []string{"Main", "Web"},
		windows: map[native.Handle]int{10: 0, 11: 1},
		sticky:  map[native.Handle]bool{12: true},
	}
	m, err := NewServiceManager(NewEWMHService(hints), nil)
	if err != nil {
		t.Fatal(err)
	}
	desktops := m.Desktops()

	var names []string
	for _, d := range desktops {
		names = append(names, d.Name())
	}
	if diff := cmp.Diff([]string{"Main", "Web", "Desktop 3"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if !Equal(m.CurrentDesktop(), desktops[1]) {
		t.Errorf("CurrentDesktop() = %v, want %v", m.CurrentDesktop(), desktops[1])
	}

	t.Run("membership", func(t *testing.T) {
		if m.IsNotOnCurrentDesktop(11) {
			t.Error("window on the current desktop reported elsewhere")
		}
		if !m.IsNotOnCurrentDesktop(10) {
			t.Error("window on another desktop reported current")
		}
		if m.IsNotOnCurrentDesktop(12) {
			t.Error("sticky window reported elsewhere")
		}
		if !m.IsNotOnCurrentDesktop(99) {
			t.Error("unknown window reported current")
		}
	})

	t.Run("switch and grow", func(t *testing.T) {
		if err := desktops[2].SwitchTo(); err != nil {
			t.Fatal(err)
		}
		hints.count = 4
		var added []int
		m.Events().DesktopAdded.Subscribe(func(d Desktop) { added = append(added, d.Index()) })
		if err := m.CheckVirtualDesktopChanges(); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]int{3}, added); diff != "" {
			t.Errorf("added mismatch (-want +got):\n%s", diff)
		}
		if !Equal(m.CurrentDesktop(), desktops[2]) {
			t.Errorf("CurrentDesktop() = %v after switching", m.CurrentDesktop())
		}
	})

	t.Run("descriptors past the end", func(t *testing.T) {
		svc := NewEWMHService(hints)
		if _, err := svc.DesktopByIndex(9); !errors.Is(err, ErrElementNotFound) {
			t.Errorf("DesktopByIndex(9) = %v, want ErrElementNotFound", err)
		}
		if err := svc.SwitchToDesktop(Descriptor{ID: ewmhID(9)}); !errors.Is(err, ErrElementNotFound) {
			t.Errorf("SwitchToDesktop = %v, want ErrElementNotFound", err)
		}
	})
}
