package vdesktop

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/native/nativetest"
	"github.com/bryanchriswhite/winman/internal/window"
)

func desktopID(i int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("desktop-%d", i)))
}

// fakeService is an in-memory Service. Windows are placed on desktops by ID;
// handles it does not know report ErrElementNotFound.
type fakeService struct {
	mu       sync.Mutex
	ids      []uuid.UUID
	names    map[uuid.UUID]string
	current  int
	pinned   map[native.Handle]bool
	windows  map[native.Handle]uuid.UUID
	failures map[string][]error
	connects int
	calls    map[string]int
}

var _ Service = (*fakeService)(nil)

func newFakeService(n int) *fakeService {
	f := &fakeService{
		names:    make(map[uuid.UUID]string),
		pinned:   make(map[native.Handle]bool),
		windows:  make(map[native.Handle]uuid.UUID),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
	f.set(n, 0)
	return f
}

// set resizes the desktop list, keeping the existing prefix.
func (f *fakeService) set(n, current int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.ids) < n {
		f.ids = append(f.ids, desktopID(len(f.ids)))
	}
	f.ids = f.ids[:n]
	f.current = current
}

// fail queues errors returned by the next calls of op.
func (f *fakeService) fail(op string, errs ...error) {
	f.mu.Lock()
	f.failures[op] = append(f.failures[op], errs...)
	f.mu.Unlock()
}

func (f *fakeService) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeService) takeLocked(op string) error {
	f.calls[op]++
	q := f.failures[op]
	if len(q) == 0 {
		return nil
	}
	f.failures[op] = q[1:]
	return q[0]
}

func (f *fakeService) indexLocked(id uuid.UUID) (int, error) {
	for i, o := range f.ids {
		if o == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrElementNotFound, id)
}

func (f *fakeService) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.takeLocked("Connect")
}

func (f *fakeService) CurrentDesktopIndex() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("CurrentDesktopIndex"); err != nil {
		return 0, err
	}
	return f.current, nil
}

func (f *fakeService) CurrentDesktopID() (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("CurrentDesktopID"); err != nil {
		return uuid.Nil, err
	}
	return f.ids[f.current], nil
}

func (f *fakeService) DesktopCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("DesktopCount"); err != nil {
		return 0, err
	}
	return len(f.ids), nil
}

func (f *fakeService) Desktops() ([]Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("Desktops"); err != nil {
		return nil, err
	}
	out := make([]Descriptor, len(f.ids))
	for i, id := range f.ids {
		out[i] = Descriptor{ID: id}
	}
	return out, nil
}

func (f *fakeService) DesktopByIndex(index int) (Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("DesktopByIndex"); err != nil {
		return Descriptor{}, err
	}
	if index < 0 || index >= len(f.ids) {
		return Descriptor{}, ErrElementNotFound
	}
	return Descriptor{ID: f.ids[index]}, nil
}

func (f *fakeService) DesktopIndex(d Descriptor) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("DesktopIndex"); err != nil {
		return -1, err
	}
	return f.indexLocked(d.ID)
}

func (f *fakeService) DesktopName(d Descriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("DesktopName"); err != nil {
		return "", err
	}
	return f.names[d.ID], nil
}

func (f *fakeService) SwitchToDesktop(d Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("SwitchToDesktop"); err != nil {
		return err
	}
	i, err := f.indexLocked(d.ID)
	if err != nil {
		return err
	}
	f.current = i
	return nil
}

func (f *fakeService) MoveToDesktop(h native.Handle, d Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("MoveToDesktop"); err != nil {
		return err
	}
	if _, err := f.indexLocked(d.ID); err != nil {
		return err
	}
	f.windows[h] = d.ID
	return nil
}

func (f *fakeService) IsWindowPinned(h native.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("IsWindowPinned"); err != nil {
		return false, err
	}
	if _, ok := f.windows[h]; !ok && !f.pinned[h] {
		return false, ErrElementNotFound
	}
	return f.pinned[h], nil
}

func (f *fakeService) IsWindowOnCurrentDesktop(h native.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("IsWindowOnCurrentDesktop"); err != nil {
		return false, err
	}
	if f.pinned[h] {
		return true, nil
	}
	id, ok := f.windows[h]
	if !ok {
		return false, ErrElementNotFound
	}
	return id == f.ids[f.current], nil
}

func (f *fakeService) HasWindow(d Descriptor, h native.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("HasWindow"); err != nil {
		return false, err
	}
	if _, err := f.indexLocked(d.ID); err != nil {
		return false, err
	}
	return f.windows[h] == d.ID, nil
}

func (f *fakeService) IsCurrentDesktop(d Descriptor) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeLocked("IsCurrentDesktop"); err != nil {
		return false, err
	}
	return f.ids[f.current] == d.ID, nil
}

// windowHost is the smallest window.Host that can back test windows.
type windowHost struct {
	sys *nativetest.Fake
}

func (h *windowHost) System() native.WindowAPI                   { return h.sys }
func (h *windowHost) IsNotOnCurrentDesktop(native.Handle) bool   { return false }
func (h *windowHost) DisplayBounds() []geom.Rect                 { return nil }
func (h *windowHost) MaximizeTolerance() int                     { return 0 }
func (h *windowHost) LookupVisible(native.Handle) *window.Window { return nil }
func (h *windowHost) Background() *eventloop.Loop                { return nil }

func newTestWindow(t *testing.T, sys *nativetest.Fake, h native.Handle) *window.Window {
	t.Helper()
	sys.Add(h, nativetest.AppWindow("app", geom.Rect{Right: 800, Bottom: 600}))
	w, err := window.New(&windowHost{sys: sys}, h)
	if err != nil {
		t.Fatalf("window.New(%s): %v", h, err)
	}
	return w
}
