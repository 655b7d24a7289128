package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/native/nativetest"
)

type testHost struct {
	sys          *nativetest.Fake
	bounds       []geom.Rect
	notOnCurrent bool
	visible      map[native.Handle]*Window
	bg           *eventloop.Loop
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	bg := eventloop.New("background")
	go bg.Run()
	t.Cleanup(func() {
		bg.Shutdown()
		<-bg.Done()
	})
	return &testHost{
		sys:     nativetest.New(),
		bounds:  []geom.Rect{{Left: 0, Top: 0, Right: 1920, Bottom: 1080}},
		visible: make(map[native.Handle]*Window),
		bg:      bg,
	}
}

func (h *testHost) System() native.WindowAPI                 { return h.sys }
func (h *testHost) IsNotOnCurrentDesktop(native.Handle) bool { return h.notOnCurrent }
func (h *testHost) DisplayBounds() []geom.Rect               { return h.bounds }
func (h *testHost) MaximizeTolerance() int                   { return 2 }
func (h *testHost) LookupVisible(hwnd native.Handle) *Window { return h.visible[hwnd] }
func (h *testHost) Background() *eventloop.Loop              { return h.bg }

var appRect = geom.Rect{Left: 100, Top: 100, Right: 900, Bottom: 700}

func (h *testHost) add(t *testing.T, hwnd native.Handle, fw nativetest.Window) *Window {
	t.Helper()
	h.sys.Add(hwnd, fw)
	w, err := New(h, hwnd)
	if err != nil {
		t.Fatalf("New(%s): %v", hwnd, err)
	}
	return w
}

type recorder struct {
	positions []PositionChange
	states    []StateChange
	topmost   []TopmostChange
	titles    []TitleChange
}

func record(w *Window) *recorder {
	r := &recorder{}
	w.Events().PositionChanged.Subscribe(func(e PositionChange) { r.positions = append(r.positions, e) })
	w.Events().StateChanged.Subscribe(func(e StateChange) { r.states = append(r.states, e) })
	w.Events().TopmostChanged.Subscribe(func(e TopmostChange) { r.topmost = append(r.topmost, e) })
	w.Events().TitleChanged.Subscribe(func(e TitleChange) { r.titles = append(r.titles, e) })
	return r
}

func TestUpdateConfigurationFiresOnlyOnChange(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	r := record(w)

	for i := 0; i < 2; i++ {
		if err := w.UpdateConfiguration(); err != nil {
			t.Fatalf("UpdateConfiguration #%d: %v", i, err)
		}
	}

	if len(r.positions) != 1 {
		t.Fatalf("got %d position events, want 1", len(r.positions))
	}
	if r.positions[0].New != appRect || !r.positions[0].Old.IsEmpty() {
		t.Errorf("position event = %+v, want empty -> %v", r.positions[0], appRect)
	}
	if len(r.states) != 0 || len(r.topmost) != 0 {
		t.Errorf("unexpected events: states=%v topmost=%v", r.states, r.topmost)
	}

	h.sys.Update(1, func(fw *nativetest.Window) { fw.ExStyle |= native.WS_EX_TOPMOST })
	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}
	if len(r.topmost) != 1 || !r.topmost[0].Topmost {
		t.Errorf("topmost events = %+v, want one change to true", r.topmost)
	}
	if len(r.positions) != 1 {
		t.Errorf("position fired again without a change")
	}
}

func TestUpdateConfigurationTreatsFullScreenAsMaximized(t *testing.T) {
	h := newTestHost(t)
	full := geom.Rect{Left: -1, Top: 0, Right: 1921, Bottom: 1080}
	w := h.add(t, 1, nativetest.AppWindow("video", full))
	r := record(w)

	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}

	want := []StateChange{{Window: w, New: Maximized, Old: Restored}}
	if diff := cmp.Diff(want, r.states, cmp.Comparer(func(a, b *Window) bool { return a == b })); diff != "" {
		t.Errorf("state events mismatch (-want +got):\n%s", diff)
	}
}

func TestStateFromPlacement(t *testing.T) {
	tests := []struct {
		cmd  native.ShowCmd
		want State
	}{
		{native.SW_SHOWNORMAL, Restored},
		{native.SW_SHOWMAXIMIZED, Maximized},
		{native.SW_SHOWMINIMIZED, Minimized},
		{native.SW_SHOWMINNOACTIVE, Minimized},
		{native.SW_MINIMIZE, Minimized},
		{native.SW_RESTORE, Restored},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := stateFromShowCmd(tt.cmd); got != tt.want {
				t.Errorf("stateFromShowCmd(%d) = %s, want %s", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestDeadWindowStaysDead(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}

	h.sys.Remove(1)
	if w.IsAlive() {
		t.Fatal("window alive after removal")
	}

	// A recycled handle must not resurrect the window.
	h.sys.Add(1, nativetest.AppWindow("other", appRect))
	if w.IsAlive() {
		t.Fatal("window resurrected")
	}

	if got := w.Position(); !got.IsEmpty() {
		t.Errorf("Position() = %v, want empty", got)
	}
	if got := w.State(); got != Minimized {
		t.Errorf("State() = %s, want minimized", got)
	}
	if w.IsTopmost() || w.IsFocused() {
		t.Error("dead window reports topmost or focused")
	}
	if got := w.Title(); got != InvalidHandleTitle {
		t.Errorf("Title() = %q, want %q", got, InvalidHandleTitle)
	}
	if w.CanResize() || w.CanMove() || w.CanClose() {
		t.Error("dead window reports capabilities")
	}
}

func TestUpdateConfigurationOnVanishedWindow(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	h.sys.Remove(1)

	if err := w.UpdateConfiguration(); err != nil {
		t.Fatalf("UpdateConfiguration() = %v, want nil", err)
	}
	if w.IsAlive() {
		t.Error("window not marked dead")
	}
}

func TestUpdateConfigurationSurfacesLiveFailure(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	boom := native.NewError("GetWindowRect", 87)
	h.sys.FailNext("Rect", boom)

	if err := w.UpdateConfiguration(); !errors.Is(err, boom) {
		t.Fatalf("UpdateConfiguration() = %v, want %v", err, boom)
	}
}

func TestNewRejectsMissingWindow(t *testing.T) {
	h := newTestHost(t)
	if _, err := New(h, 42); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("New() = %v, want ErrInvalidWindow", err)
	}
}

func TestSetPosition(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	r := record(w)
	target := geom.OffsetAndSize(10, 20, 300, 200)

	if err := w.SetPosition(target); err != nil {
		t.Fatal(err)
	}

	calls := h.sys.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	wantFlags := uint32(native.SWP_NOZORDER | native.SWP_ASYNCWINDOWPOS | native.SWP_NOACTIVATE)
	if calls[0].Flags != wantFlags || calls[0].Rect != target {
		t.Errorf("SetWindowPos call = %+v", calls[0])
	}
	if len(r.positions) != 1 || r.positions[0].New != target {
		t.Errorf("position events = %+v", r.positions)
	}
}

func TestSetPositionKeepsSizeWhenNotResizable(t *testing.T) {
	h := newTestHost(t)
	fw := nativetest.AppWindow("dialog", appRect)
	fw.Style &^= native.WS_SIZEBOX
	w := h.add(t, 1, fw)
	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}

	if err := w.SetPosition(geom.OffsetAndSize(0, 0, 50, 50)); err != nil {
		t.Fatal(err)
	}

	calls := h.sys.Calls()
	last := calls[len(calls)-1]
	if last.Flags&native.SWP_NOSIZE == 0 {
		t.Error("SWP_NOSIZE not set")
	}
	want := geom.OffsetAndSize(0, 0, appRect.Width(), appRect.Height())
	if got := w.Position(); got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}
}

func TestSetPositionRequiresRestored(t *testing.T) {
	h := newTestHost(t)
	fw := nativetest.AppWindow("editor", appRect)
	fw.ShowCmd = native.SW_SHOWMAXIMIZED
	w := h.add(t, 1, fw)
	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}

	if err := w.SetPosition(appRect); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("SetPosition() = %v, want ErrInvalidOperation", err)
	}
}

func TestSetStateGates(t *testing.T) {
	h := newTestHost(t)
	fw := nativetest.AppWindow("tool", appRect)
	fw.Style &^= native.WS_MINIMIZEBOX
	w := h.add(t, 1, fw)
	r := record(w)

	if err := w.SetState(Minimized); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("SetState(Minimized) = %v, want ErrInvalidOperation", err)
	}
	if err := w.SetState(Maximized); err != nil {
		t.Fatalf("SetState(Maximized): %v", err)
	}
	if len(r.states) != 1 || r.states[0].New != Maximized {
		t.Errorf("state events = %+v", r.states)
	}
	got, _ := h.sys.Get(1)
	if got.ShowCmd != native.SW_SHOWMAXIMIZED {
		t.Errorf("show command = %d, want maximized", got.ShowCmd)
	}
}

func TestSetTopmost(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	r := record(w)

	if err := w.SetTopmost(true); err != nil {
		t.Fatal(err)
	}
	if err := w.SetTopmost(true); err != nil {
		t.Fatal(err)
	}

	if len(r.topmost) != 1 {
		t.Errorf("got %d topmost events, want 1", len(r.topmost))
	}
	if calls := h.sys.Calls(); calls[0].InsertAfter != native.HWND_TOPMOST {
		t.Errorf("insert after = %s, want HWND_TOPMOST", calls[0].InsertAfter)
	}
}

func TestMutatorsOnDeadWindow(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	h.sys.Remove(1)

	if err := w.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	if err := w.SetTopmost(true); err != nil {
		t.Errorf("SetTopmost() = %v, want nil", err)
	}
	if err := w.SendToBack(); err != nil {
		t.Errorf("SendToBack() = %v, want nil", err)
	}
	if w.RequestFocus() {
		t.Error("RequestFocus() = true on a dead window")
	}
	if _, err := w.Process(); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Process() = %v, want ErrInvalidWindow", err)
	}
}

func TestMutatorSurfacesLiveFailure(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	boom := native.NewError("PostMessage(WM_CLOSE)", native.ERROR_ACCESS_DENIED)
	h.sys.FailNext("PostClose", boom)

	if err := w.Close(); !errors.Is(err, native.ErrAccessDenied) {
		t.Fatalf("Close() = %v, want access denied", err)
	}
}

func TestMoveSizeReportsStartPosition(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	if err := w.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}

	var starts, ends []PositionChange
	w.Events().PositionChangeStart.Subscribe(func(e PositionChange) { starts = append(starts, e) })
	w.Events().PositionChangeEnd.Subscribe(func(e PositionChange) { ends = append(ends, e) })

	w.OnMoveSizeStart()
	moved := geom.OffsetAndSize(400, 300, appRect.Width(), appRect.Height())
	h.sys.Update(1, func(fw *nativetest.Window) { fw.Rect = moved })
	if err := w.OnMoveSizeEnd(); err != nil {
		t.Fatal(err)
	}

	if len(starts) != 1 || starts[0].New != appRect {
		t.Errorf("start events = %+v", starts)
	}
	if len(ends) != 1 || ends[0].New != moved || ends[0].Old != appRect {
		t.Errorf("end events = %+v, want %v -> %v", ends, appRect, moved)
	}
}

func TestFocusNotifications(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))

	var got []string
	w.Events().GotFocus.Subscribe(func(*Window) { got = append(got, "got") })
	w.Events().LostFocus.Subscribe(func(*Window) { got = append(got, "lost") })

	w.OnForeground()
	if !w.IsFocused() {
		t.Error("IsFocused() = false after OnForeground")
	}
	w.OnBackground()

	if diff := cmp.Diff([]string{"got", "lost"}, got); diff != "" {
		t.Errorf("focus events mismatch (-want +got):\n%s", diff)
	}
}

func TestOnDestroyedClearsListeners(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("editor", appRect))
	destroyed := 0
	w.Events().Destroyed.Subscribe(func(*Window) { destroyed++ })
	w.Events().PositionChanged.Subscribe(func(PositionChange) {})

	w.OnDestroyed()

	if destroyed != 1 {
		t.Errorf("Destroyed fired %d times, want 1", destroyed)
	}
	if w.IsAlive() {
		t.Error("window alive after OnDestroyed")
	}
	if n := w.Events().PositionChanged.Len() + w.Events().Destroyed.Len(); n != 0 {
		t.Errorf("%d listeners left after OnDestroyed", n)
	}
}

func TestTitleChange(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("draft", appRect))
	r := record(w)

	h.sys.Update(1, func(fw *nativetest.Window) { fw.Title = "final" })
	w.OnTitleChange()
	w.OnTitleChange()

	want := []TitleChange{{Window: w, New: "final", Old: "draft"}}
	if diff := cmp.Diff(want, r.titles, cmp.Comparer(func(a, b *Window) bool { return a == b })); diff != "" {
		t.Errorf("title events mismatch (-want +got):\n%s", diff)
	}

	h.sys.Update(1, func(fw *nativetest.Window) { fw.Hung = true })
	w.OnTitleChange()
	if got := w.Title(); got != InvalidHandleTitle {
		t.Errorf("Title() of hung window = %q, want %q", got, InvalidHandleTitle)
	}
}

func TestRefreshTitleRunsOnBackgroundLoop(t *testing.T) {
	h := newTestHost(t)
	w := h.add(t, 1, nativetest.AppWindow("draft", appRect))
	h.sys.Update(1, func(fw *nativetest.Window) { fw.Title = "final" })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := w.RefreshTitle().Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "final" {
		t.Errorf("RefreshTitle() = %q, want %q", got, "final")
	}
}

func TestSiblingNavigation(t *testing.T) {
	h := newTestHost(t)
	top := h.add(t, 1, nativetest.AppWindow("top", appRect))
	h.sys.Add(2, nativetest.Window{})
	bottom := h.add(t, 3, nativetest.AppWindow("bottom", appRect))
	h.visible[1] = top
	h.visible[3] = bottom

	if got := top.NextWindow(); got != bottom {
		t.Errorf("NextWindow() = %v, want %v", got, bottom)
	}
	if got := bottom.PreviousWindow(); got != top {
		t.Errorf("PreviousWindow() = %v, want %v", got, top)
	}
	if got := bottom.NextWindow(); got != nil {
		t.Errorf("NextWindow() of last = %v, want nil", got)
	}
}

func TestMinMaxSize(t *testing.T) {
	h := newTestHost(t)
	fw := nativetest.AppWindow("editor", appRect)
	fw.MinMax.MinTrack = geom.Point{X: 120, Y: 80}
	w := h.add(t, 1, fw)

	if got, ok := w.MinSize(); !ok || got != (geom.Point{X: 120, Y: 80}) {
		t.Errorf("MinSize() = %v, %v", got, ok)
	}
	if _, ok := w.MaxSize(); ok {
		t.Error("MaxSize() reported a bound for an unbounded window")
	}

	fixed := nativetest.AppWindow("dialog", appRect)
	fixed.Style &^= native.WS_SIZEBOX
	d := h.add(t, 2, fixed)
	if err := d.UpdateConfiguration(); err != nil {
		t.Fatal(err)
	}
	if got, ok := d.MaxSize(); !ok || got != appRect.Size() {
		t.Errorf("MaxSize() of fixed window = %v, %v, want %v", got, ok, appRect.Size())
	}
}

func TestFrameMargins(t *testing.T) {
	h := newTestHost(t)
	fw := nativetest.AppWindow("editor", appRect)
	fw.Frame = geom.Rect{Left: appRect.Left + 7, Top: appRect.Top, Right: appRect.Right - 7, Bottom: appRect.Bottom - 7}
	w := h.add(t, 1, fw)

	want := geom.Rect{Left: 7, Top: 0, Right: 7, Bottom: 7}
	if got := w.FrameMargins(); got != want {
		t.Errorf("FrameMargins() = %v, want %v", got, want)
	}
}

func TestHandleEnsureWindowCreatesOnce(t *testing.T) {
	h := newTestHost(t)
	h.sys.Add(1, nativetest.AppWindow("editor", appRect))
	handle := NewHandle(1)

	a, err := handle.EnsureWindow(h)
	if err != nil {
		t.Fatal(err)
	}
	b, err := handle.EnsureWindow(h)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || handle.Window() != a {
		t.Error("EnsureWindow created a second Window")
	}
}

func TestStateText(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("maximized")); err != nil || s != Maximized {
		t.Errorf("UnmarshalText(maximized) = %s, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("fullscreen")); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("UnmarshalText(fullscreen) = %v, want ErrInvalidOperation", err)
	}
}
