package workspace

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/native/nativetest"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
)

var screen = native.MonitorInfo{
	DeviceID:    `\\.\DISPLAY1`,
	Bounds:      geom.Rect{Right: 1920, Bottom: 1080},
	WorkArea:    geom.Rect{Right: 1920, Bottom: 1040},
	Scaling:     1,
	RefreshRate: 60,
}

// countingDesktops is the single-desktop manager with a counter on the
// reconciliation entry point.
type countingDesktops struct {
	*vdesktop.Dummy
	checks atomic.Int32
}

func (d *countingDesktops) CheckVirtualDesktopChanges() error {
	d.checks.Add(1)
	return nil
}

func testConfig() config.Config {
	cfg := *config.Defaults()
	cfg.Displays.EmptyRetries = 0
	cfg.Workspace.JoinTimeout = 2 * time.Second
	return cfg
}

func newTestSystem() *nativetest.Fake {
	sys := nativetest.New()
	sys.SetMonitor(1, screen)
	return sys
}

func newTestWorkspace(t *testing.T, sys *nativetest.Fake, opts ...Option) *Workspace {
	t.Helper()
	if len(opts) == 0 {
		opts = []Option{WithVirtualDesktopManager(vdesktop.NewDummy())}
	}
	ws := New(sys, testConfig(), opts...)
	t.Cleanup(ws.Dispose)
	return ws
}

func openWorkspace(t *testing.T, ws *Workspace, sys *nativetest.Fake) {
	t.Helper()
	if err := ws.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	select {
	case <-sys.Pumping():
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not start")
	}
	ws.Sync()
}

// recorder collects workspace events as short strings.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	r.log = append(r.log, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.log
	r.log = nil
	return out
}

func handleOf(w *window.Window) int {
	if w == nil {
		return 0
	}
	return int(w.Handle())
}

func (r *recorder) watch(ws *Workspace) {
	ev := ws.Events()
	ev.WindowManaging.Subscribe(func(w *window.Window) { r.add("managing %d", w.Handle()) })
	ev.WindowAdded.Subscribe(func(w *window.Window) { r.add("added %d", w.Handle()) })
	ev.WindowRemoved.Subscribe(func(w *window.Window) { r.add("removed %d", w.Handle()) })
	ev.WindowDestroyed.Subscribe(func(w *window.Window) { r.add("destroyed %d", w.Handle()) })
	ev.FocusedWindowChanged.Subscribe(func(c FocusChange) {
		r.add("focus %d->%d", handleOf(c.Old), handleOf(c.New))
	})
}

func app(title string) nativetest.Window {
	return nativetest.AppWindow(title, geom.Rect{Left: 10, Top: 10, Right: 810, Bottom: 610})
}

func TestOpenManagesVisibleWindows(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	tool := app("palette")
	tool.ExStyle = native.WS_EX_TOOLWINDOW
	sys.Add(2, tool)
	hidden := app("hidden")
	hidden.Visible = false
	sys.Add(3, hidden)
	sys.Add(4, app("terminal"))

	ws := newTestWorkspace(t, sys)
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)

	if diff := cmp.Diff([]string{"managing 1", "managing 4"}, rec.take()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	snap, err := ws.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, w := range snap {
		got = append(got, handleOf(w))
	}
	if diff := cmp.Diff([]int{1, 4}, got); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
	if got := snap[0].Position(); got != app("").Rect {
		t.Errorf("Position() = %s", got)
	}
}

func TestLifecycleErrors(t *testing.T) {
	sys := newTestSystem()
	ws := newTestWorkspace(t, sys)

	if _, err := ws.Snapshot(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Snapshot() before Open = %v, want ErrNotOpen", err)
	}
	if _, err := ws.FocusedWindow(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("FocusedWindow() before Open = %v, want ErrNotOpen", err)
	}
	if err := ws.RefreshConfiguration(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("RefreshConfiguration() before Open = %v, want ErrNotOpen", err)
	}
	if err := ws.SetWatchInterval(0); !errors.Is(err, window.ErrInvalidOperation) {
		t.Errorf("SetWatchInterval(0) = %v, want ErrInvalidOperation", err)
	}
	if err := ws.SetWatchInterval(50 * time.Millisecond); err != nil {
		t.Fatalf("SetWatchInterval: %v", err)
	}

	openWorkspace(t, ws, sys)
	if got := sys.PumpConfig().WatchInterval; got != 50*time.Millisecond {
		t.Errorf("pump watch interval = %s, want 50ms", got)
	}
	if err := ws.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open() = %v, want ErrAlreadyOpen", err)
	}
	if err := ws.SetWatchInterval(time.Second); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("SetWatchInterval() after Open = %v, want ErrAlreadyOpen", err)
	}

	ws.Dispose()
	if sys.EmitWindow(native.EVENT_SYSTEM_FOREGROUND, 1) {
		t.Error("pump still running after Dispose")
	}
	if err := ws.Open(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Open() after Dispose = %v, want ErrDisposed", err)
	}
	if _, err := ws.Snapshot(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Snapshot() after Dispose = %v, want ErrDisposed", err)
	}
	ws.Dispose()
}

func TestWindowLifecycle(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	ws := newTestWorkspace(t, sys)
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)
	rec.take()

	w, err := ws.FindWindow(1)
	if err != nil || w == nil {
		t.Fatalf("FindWindow(1) = %v, %v", w, err)
	}
	var own []string
	w.Events().Removed.Subscribe(func(*window.Window) { own = append(own, "removed") })
	w.Events().Destroyed.Subscribe(func(*window.Window) { own = append(own, "destroyed") })

	sys.Remove(1)
	sys.EmitWindow(native.EVENT_OBJECT_DESTROY, 1)
	ws.Sync()

	if diff := cmp.Diff([]string{"removed 1", "destroyed 1"}, rec.take()); diff != "" {
		t.Errorf("workspace events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"removed", "destroyed"}, own); diff != "" {
		t.Errorf("window events mismatch (-want +got):\n%s", diff)
	}
	if got := w.Position(); got != (geom.Rect{}) {
		t.Errorf("Position() of a destroyed window = %s, want empty", got)
	}
	if w.IsAlive() {
		t.Error("destroyed window alive")
	}
	if found, _ := ws.FindWindow(1); found != nil {
		t.Error("FindWindow() still returns the destroyed window")
	}

	t.Run("destroying an untracked window is silent", func(t *testing.T) {
		sys.EmitWindow(native.EVENT_OBJECT_DESTROY, 99)
		ws.Sync()
		if got := rec.take(); len(got) != 0 {
			t.Errorf("unexpected events %v", got)
		}
	})
}

func TestWindowCreated(t *testing.T) {
	sys := newTestSystem()
	ws := newTestWorkspace(t, sys)
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)

	sys.Add(5, app("browser"))
	sys.EmitWindow(native.EVENT_OBJECT_CREATE, 5)
	ws.Sync()
	ws.Sync()

	if diff := cmp.Diff([]string{"added 5"}, rec.take()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	t.Run("duplicate create is ignored", func(t *testing.T) {
		sys.EmitWindow(native.EVENT_OBJECT_CREATE, 5)
		ws.Sync()
		ws.Sync()
		if got := rec.take(); len(got) != 0 {
			t.Errorf("unexpected events %v", got)
		}
	})
}

func TestRecentWindowRecheck(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		wantAdded bool
	}{
		{name: "becomes visible within the window", duration: time.Hour, wantAdded: true},
		{name: "expired after one recheck", duration: time.Nanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newTestSystem()
			cfg := testConfig()
			cfg.Workspace.RecentWindowDuration = tt.duration
			ws := New(sys, cfg, WithVirtualDesktopManager(vdesktop.NewDummy()))
			t.Cleanup(ws.Dispose)
			var rec recorder
			rec.watch(ws)
			openWorkspace(t, ws, sys)

			splash := app("loading")
			splash.Visible = false
			sys.Add(6, splash)
			sys.EmitWindow(native.EVENT_OBJECT_CREATE, 6)
			ws.Sync()

			time.Sleep(time.Millisecond)
			sys.Tick(native.TimerRecent)
			ws.Sync()
			if got := rec.take(); len(got) != 0 {
				t.Fatalf("invisible window reported: %v", got)
			}

			sys.Update(6, func(w *nativetest.Window) { w.Visible = true })
			sys.Tick(native.TimerRecent)
			ws.Sync()

			var want []string
			if tt.wantAdded {
				want = []string{"added 6"}
			}
			if diff := cmp.Diff(want, rec.take()); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFocusTransitions(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	sys.Add(2, app("terminal"))
	ws := newTestWorkspace(t, sys)
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)
	rec.take()

	focus := func(h native.Handle) {
		sys.SetForegroundHandle(h)
		sys.EmitWindow(native.EVENT_SYSTEM_FOREGROUND, h)
		ws.Sync()
	}

	focus(1)
	focus(1)
	focus(1)
	focus(2)
	focus(99)

	want := []string{"focus 0->1", "focus 1->2", "focus 2->0"}
	if diff := cmp.Diff(want, rec.take()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	focus(1)
	w, err := ws.FocusedWindow()
	if err != nil || handleOf(w) != 1 {
		t.Fatalf("FocusedWindow() = %v, %v", w, err)
	}
	if !w.IsFocused() {
		t.Error("IsFocused() = false for the focused window")
	}
	other, _ := ws.FindWindow(2)
	if other.IsFocused() {
		t.Error("IsFocused() = true after losing focus")
	}
}

func TestPendingFlagsCoalesce(t *testing.T) {
	ws := New(newTestSystem(), testConfig())
	var flag atomic.Bool
	task := func() error { return nil }

	ws.schedule(&flag, task)
	ws.schedule(&flag, task)
	ws.schedule(&flag, task)
	if got := ws.processing.Len(); got != 1 {
		t.Errorf("queued %d tasks, want 1", got)
	}

	flag.Store(false)
	ws.schedule(&flag, task)
	if got := ws.processing.Len(); got != 2 {
		t.Errorf("queued %d tasks after the flag cleared, want 2", got)
	}
}

func TestDirtyCheck(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	desktops := &countingDesktops{Dummy: vdesktop.NewDummy()}
	ws := newTestWorkspace(t, sys, WithVirtualDesktopManager(desktops))
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)
	rec.take()

	t.Run("watch tick", func(t *testing.T) {
		sys.Update(1, func(w *nativetest.Window) { w.Visible = false })
		sys.Tick(native.TimerWatch)
		ws.Sync()
		ws.Sync()
		if diff := cmp.Diff([]string{"removed 1"}, rec.take()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
		if got := desktops.checks.Load(); got != 1 {
			t.Errorf("desktop checks = %d, want 1", got)
		}
	})

	t.Run("desktop switch", func(t *testing.T) {
		sys.Update(1, func(w *nativetest.Window) { w.Visible = true })
		sys.EmitWindow(native.EVENT_SYSTEM_DESKTOPSWITCH, 0)
		ws.Sync()
		if diff := cmp.Diff([]string{"added 1"}, rec.take()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
		if got := desktops.checks.Load(); got != 2 {
			t.Errorf("desktop checks = %d, want 2", got)
		}
	})

	t.Run("unchanged state fires nothing", func(t *testing.T) {
		var changes int
		w, _ := ws.FindWindow(1)
		w.Events().PositionChanged.Subscribe(func(window.PositionChange) { changes++ })
		w.Events().StateChanged.Subscribe(func(window.StateChange) { changes++ })
		for i := 0; i < 2; i++ {
			if err := ws.RefreshConfiguration(); err != nil {
				t.Fatal(err)
			}
			ws.Sync()
		}
		if changes != 0 {
			t.Errorf("%d change events for an unchanged window", changes)
		}
		if got := rec.take(); len(got) != 0 {
			t.Errorf("unexpected events %v", got)
		}
	})
}

func TestMaximizedByGeometry(t *testing.T) {
	sys := newTestSystem()
	full := nativetest.AppWindow("fullscreen", screen.Bounds)
	sys.Add(1, full)
	ws := newTestWorkspace(t, sys)
	openWorkspace(t, ws, sys)

	w, _ := ws.FindWindow(1)
	if got := w.State(); got != window.Maximized {
		t.Errorf("State() = %s, want maximized", got)
	}
}

func TestWindowHookEvents(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	ws := newTestWorkspace(t, sys)
	openWorkspace(t, ws, sys)
	w, _ := ws.FindWindow(1)

	t.Run("name change runs on the background loop", func(t *testing.T) {
		titles := make(chan string, 1)
		w.Events().TitleChanged.Subscribe(func(c window.TitleChange) { titles <- c.New })
		sys.Update(1, func(nw *nativetest.Window) { nw.Title = "editor - main.go" })
		sys.EmitWindow(native.EVENT_OBJECT_NAMECHANGE, 1)
		select {
		case got := <-titles:
			if got != "editor - main.go" {
				t.Errorf("TitleChanged.New = %q", got)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no title change")
		}
	})

	t.Run("location change", func(t *testing.T) {
		moved := geom.Rect{Left: 100, Top: 100, Right: 900, Bottom: 700}
		var got []geom.Rect
		w.Events().PositionChanged.Subscribe(func(c window.PositionChange) { got = append(got, c.New) })
		sys.Update(1, func(nw *nativetest.Window) { nw.Rect = moved })
		sys.EmitWindow(native.EVENT_OBJECT_LOCATIONCHANGE, 1)
		ws.Sync()
		if diff := cmp.Diff([]geom.Rect{moved}, got); diff != "" {
			t.Errorf("positions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("interactive move", func(t *testing.T) {
		var ends []window.PositionChange
		w.Events().PositionChangeEnd.Subscribe(func(c window.PositionChange) { ends = append(ends, c) })
		start := w.Position()
		end := geom.Rect{Left: 200, Top: 200, Right: 1000, Bottom: 800}
		sys.EmitWindow(native.EVENT_SYSTEM_MOVESIZESTART, 1)
		sys.Update(1, func(nw *nativetest.Window) { nw.Rect = end })
		sys.EmitWindow(native.EVENT_SYSTEM_MOVESIZEEND, 1)
		ws.Sync()
		if len(ends) != 1 || ends[0].New != end || ends[0].Old != start {
			t.Errorf("PositionChangeEnd = %+v, want %s from %s", ends, end, start)
		}
	})

	t.Run("other objects are ignored", func(t *testing.T) {
		sys.Update(1, func(nw *nativetest.Window) { nw.Rect = geom.Rect{Right: 10, Bottom: 10} })
		sys.Emit(native.WinEvent{Event: native.EVENT_OBJECT_LOCATIONCHANGE, Hwnd: 1, ObjectID: 3})
		ws.Sync()
		if got := w.Position(); got.Right == 10 {
			t.Error("child object event updated the window")
		}
	})
}

func TestCursorLocation(t *testing.T) {
	sys := newTestSystem()
	sys.SetCursor(geom.Point{X: 5, Y: 5}, nil)
	ws := newTestWorkspace(t, sys)
	var moves []CursorChange
	ws.Events().CursorLocationChanged.Subscribe(func(c CursorChange) { moves = append(moves, c) })
	var unhandled []error
	ws.Events().UnhandledError.Subscribe(func(err error) { unhandled = append(unhandled, err) })
	openWorkspace(t, ws, sys)

	if got, _ := ws.CursorLocation(); got != (geom.Point{X: 5, Y: 5}) {
		t.Errorf("initial CursorLocation() = %s", got)
	}

	cursorMoved := native.WinEvent{Event: native.EVENT_OBJECT_LOCATIONCHANGE, ObjectID: native.OBJID_CURSOR}
	sys.SetCursor(geom.Point{X: 50, Y: 60}, nil)
	sys.Emit(cursorMoved)
	ws.Sync()
	sys.Emit(cursorMoved)
	ws.Sync()

	want := []CursorChange{{New: geom.Point{X: 50, Y: 60}, Old: geom.Point{X: 5, Y: 5}}}
	if diff := cmp.Diff(want, moves); diff != "" {
		t.Errorf("cursor changes mismatch (-want +got):\n%s", diff)
	}

	sys.SetCursor(geom.Point{}, native.NewError("GetCursorPos", native.ERROR_ACCESS_DENIED))
	sys.Emit(cursorMoved)
	ws.Sync()
	if len(unhandled) != 0 {
		t.Errorf("access denied reported as unhandled: %v", unhandled)
	}
}

func TestProcessingErrors(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	ws := newTestWorkspace(t, sys)
	var mu sync.Mutex
	var unhandled []error
	ws.Events().UnhandledError.Subscribe(func(err error) {
		mu.Lock()
		unhandled = append(unhandled, err)
		mu.Unlock()
	})
	var rec recorder
	rec.watch(ws)
	openWorkspace(t, ws, sys)
	rec.take()

	take := func() []error {
		mu.Lock()
		defer mu.Unlock()
		out := unhandled
		unhandled = nil
		return out
	}

	t.Run("invalid handle triggers a visibility sweep", func(t *testing.T) {
		sys.Update(1, func(w *nativetest.Window) { w.Visible = false })
		ws.processing.Schedule(func() error {
			return native.NewError("GetWindowRect", native.ERROR_INVALID_WINDOW_HANDLE)
		})
		ws.Sync()
		if got := take(); len(got) != 0 {
			t.Errorf("unhandled errors %v", got)
		}
		if diff := cmp.Diff([]string{"removed 1"}, rec.take()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("other errors reach the listeners", func(t *testing.T) {
		boom := errors.New("boom")
		ws.processing.Schedule(func() error { return boom })
		ws.Sync()
		got := take()
		if len(got) != 1 || !errors.Is(got[0], boom) {
			t.Errorf("unhandled errors = %v, want boom", got)
		}
	})

	t.Run("aggregates split invalid handles from other errors", func(t *testing.T) {
		boom := errors.New("boom")
		ws.processing.Schedule(func() error {
			return multierr.Combine(native.NewError("GetWindowRect", native.ERROR_INVALID_WINDOW_HANDLE), boom)
		})
		ws.Sync()
		got := take()
		if len(got) != 1 || got[0] != boom {
			t.Errorf("unhandled errors = %v, want only boom", got)
		}
	})

	t.Run("listener panics reach the listeners", func(t *testing.T) {
		stop := ws.Events().WindowAdded.Subscribe(func(*window.Window) { panic("listener failed") })
		defer stop()
		sys.Add(2, app("terminal"))
		sys.EmitWindow(native.EVENT_OBJECT_CREATE, 2)
		ws.Sync()
		got := take()
		if len(got) != 1 || got[0].Error() != "task panicked: listener failed" {
			t.Errorf("unhandled errors = %v", got)
		}
		if w, _ := ws.FindWindow(2); w == nil || !ws.isVisible(w) {
			t.Error("window not tracked after a listener panic")
		}
	})
}

func TestFindWindowFromPoint(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, nativetest.AppWindow("back", geom.Rect{Right: 800, Bottom: 600}))
	sys.Add(2, nativetest.AppWindow("front", geom.Rect{Left: 100, Top: 100, Right: 900, Bottom: 700}))
	ws := newTestWorkspace(t, sys)
	openWorkspace(t, ws, sys)

	tests := []struct {
		name  string
		order []native.Handle
		pt    geom.Point
		want  int
	}{
		{name: "overlap, 2 on top", order: []native.Handle{2, 1}, pt: geom.Point{X: 200, Y: 200}, want: 2},
		{name: "overlap, 1 on top", order: []native.Handle{1, 2}, pt: geom.Point{X: 200, Y: 200}, want: 1},
		{name: "only 1", order: []native.Handle{2, 1}, pt: geom.Point{X: 50, Y: 50}, want: 1},
		{name: "nothing", order: []native.Handle{2, 1}, pt: geom.Point{X: 1500, Y: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys.SetOrder(tt.order...)
			w, err := ws.FindWindowFromPoint(tt.pt)
			if err != nil {
				t.Fatal(err)
			}
			if got := handleOf(w); got != tt.want {
				t.Errorf("FindWindowFromPoint(%s) = %d, want %d", tt.pt, got, tt.want)
			}
		})
	}
}

func TestSnapshotZOrderComparer(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("a"))
	sys.Add(2, app("b"))
	ws := newTestWorkspace(t, sys)
	openWorkspace(t, ws, sys)
	sys.SetOrder(2, 1)

	cmpZ, err := ws.SnapshotZOrderComparer()
	if err != nil {
		t.Fatal(err)
	}
	a, _ := ws.FindWindow(1)
	b, _ := ws.FindWindow(2)
	sys.Add(3, app("c"))
	c, err := ws.UnsafeCreateFromHandle(3)
	if err != nil {
		t.Fatal(err)
	}

	if cmpZ(b, a) >= 0 || cmpZ(a, b) <= 0 {
		t.Error("window 2 should sort before window 1")
	}
	if cmpZ(a, c) >= 0 || cmpZ(c, a) <= 0 {
		t.Error("a window unknown to the snapshot should sort last")
	}
	if cmpZ(a, a) != 0 {
		t.Error("a window should compare equal to itself")
	}
}

func TestEventFeed(t *testing.T) {
	sys := newTestSystem()
	sys.Add(1, app("editor"))
	ws := newTestWorkspace(t, sys)
	feed := ws.Subscribe()
	openWorkspace(t, ws, sys)

	next := func() Event {
		t.Helper()
		select {
		case ev := <-feed:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("no feed event")
		}
		return Event{}
	}

	ev := next()
	if ev.Kind != KindWindowManaging || ev.Window == nil || ev.Window.Title != "editor" {
		t.Fatalf("first event = %+v", ev)
	}

	sys.Update(1, func(w *nativetest.Window) { w.Rect = geom.Rect{Right: 300, Bottom: 300} })
	sys.EmitWindow(native.EVENT_OBJECT_LOCATIONCHANGE, 1)
	ws.Sync()
	ev = next()
	if ev.Kind != KindWindowMoved || ev.Window.Bounds != (geom.Rect{Right: 300, Bottom: 300}) {
		t.Errorf("move event = %+v", ev)
	}

	ws.Unsubscribe(feed)
	if _, ok := <-feed; ok {
		t.Error("feed still open after Unsubscribe")
	}

	late := ws.Subscribe()
	ws.Dispose()
	if _, ok := <-late; ok {
		t.Error("feed still open after Dispose")
	}
	if _, ok := <-ws.Subscribe(); ok {
		t.Error("subscription after Dispose is open")
	}
}

func TestDisplayChangeRouting(t *testing.T) {
	sys := newTestSystem()
	ws := newTestWorkspace(t, sys)
	openWorkspace(t, ws, sys)
	dm, err := ws.DisplayManager()
	if err != nil {
		t.Fatal(err)
	}
	var added []string
	dm.Events().Added.Subscribe(func(d *display.Display) { added = append(added, d.DeviceID()) })

	second := native.MonitorInfo{
		DeviceID: `\\.\DISPLAY2`,
		Bounds:   geom.Rect{Left: 1920, Right: 3840, Bottom: 1080},
		Scaling:  1,
	}
	sys.SetMonitor(2, second)
	sys.DisplayChange()
	ws.Sync()
	if diff := cmp.Diff([]string{second.DeviceID}, added); diff != "" {
		t.Errorf("added displays mismatch (-want +got):\n%s", diff)
	}
	if got := ws.DisplayBounds(); len(got) != 2 {
		t.Errorf("DisplayBounds() = %v", got)
	}
}
