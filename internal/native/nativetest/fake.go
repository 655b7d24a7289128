// Package nativetest provides an in-memory native.System for tests.
package nativetest

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Window is the scripted OS state of one window.
type Window struct {
	Visible bool
	// Root is the GA_ROOT ancestor; zero means the window is its own root.
	Root     native.Handle
	Style    uint32
	ExStyle  uint32
	Cloaked  uint32
	Title    string
	Rect     geom.Rect
	ShowCmd  native.ShowCmd
	PID      uint32
	NoAccess bool
	// Frame is the DWM extended frame; zero means Rect.
	Frame  geom.Rect
	MinMax native.MinMax
	// Hung makes title and min/max queries time out.
	Hung bool
}

// AppWindow returns a regular resizable application window.
func AppWindow(title string, r geom.Rect) Window {
	return Window{
		Visible: true,
		Style:   native.WS_SIZEBOX | native.WS_MINIMIZEBOX | native.WS_MAXIMIZEBOX,
		ExStyle: native.WS_EX_WINDOWEDGE | native.WS_EX_APPWINDOW,
		Title:   title,
		Rect:    r,
		ShowCmd: native.SW_SHOWNORMAL,
		PID:     1000,
		MinMax: native.MinMax{
			MaxTrack: geom.Point{X: math.MaxInt32, Y: math.MaxInt32},
		},
	}
}

// Call records one mutating call.
type Call struct {
	Op          string
	Handle      native.Handle
	InsertAfter native.Handle
	Rect        geom.Rect
	Flags       uint32
	Show        native.ShowCmd
}

// Fake is a scriptable native.System. All methods are safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	windows    map[native.Handle]*Window
	order      []native.Handle
	foreground native.Handle
	cursor     geom.Point
	cursorErr  error
	monitors   map[native.Monitor]native.MonitorInfo
	emptyEnums int
	version    native.OSVersion
	fail       map[string]error
	calls      []Call

	sink     native.Sink
	pumpCfg  native.PumpConfig
	pumping  chan struct{}
	pumpOnce sync.Once
}

var _ native.System = (*Fake)(nil)

// New returns an empty fake running a recent Windows 11 build.
func New() *Fake {
	return &Fake{
		windows:  make(map[native.Handle]*Window),
		monitors: make(map[native.Monitor]native.MonitorInfo),
		version:  native.OSVersion{Major: 10, Build: 22631, UBR: 3085},
		fail:     make(map[string]error),
		pumping:  make(chan struct{}),
	}
}

// Add places a window at the bottom of the z-order.
func (f *Fake) Add(h native.Handle, w Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[h]; !ok {
		f.order = append(f.order, h)
	}
	cp := w
	f.windows[h] = &cp
}

// Update mutates a window in place. It is a no-op for unknown handles.
func (f *Fake) Update(h native.Handle, fn func(w *Window)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		fn(w)
	}
}

// Remove destroys a window without emitting an event.
func (f *Fake) Remove(h native.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, h)
	for i, o := range f.order {
		if o == h {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	if f.foreground == h {
		f.foreground = 0
	}
}

// Get returns a copy of a window's scripted state.
func (f *Fake) Get(h native.Handle) (Window, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// SetOrder replaces the z-order, topmost first.
func (f *Fake) SetOrder(hs ...native.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append([]native.Handle(nil), hs...)
}

// SetForegroundHandle changes the foreground window without an event.
func (f *Fake) SetForegroundHandle(h native.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foreground = h
}

// SetCursor moves the cursor. A non-nil err makes CursorPos fail.
func (f *Fake) SetCursor(pt geom.Point, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = pt
	f.cursorErr = err
}

// SetMonitor adds or updates a monitor.
func (f *Fake) SetMonitor(m native.Monitor, info native.MonitorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors[m] = info
}

// RemoveMonitor unplugs a monitor.
func (f *Fake) RemoveMonitor(m native.Monitor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.monitors, m)
}

// EmptyEnumerations makes the next n monitor enumerations report nothing.
func (f *Fake) EmptyEnumerations(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptyEnums = n
}

// SetVersion changes the reported OS version.
func (f *Fake) SetVersion(v native.OSVersion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = v
}

// FailNext makes the next call of op return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls returns the recorded mutating calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Pumping is closed once Pump has installed its sink.
func (f *Fake) Pumping() <-chan struct{} {
	return f.pumping
}

// PumpConfig returns the configuration Pump was started with.
func (f *Fake) PumpConfig() native.PumpConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pumpCfg
}

func (f *Fake) currentSink() native.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

// Emit delivers a hook event. It reports false when no pump is running.
func (f *Fake) Emit(ev native.WinEvent) bool {
	s := f.currentSink()
	if s == nil {
		return false
	}
	s.WinEvent(ev)
	return true
}

// EmitWindow delivers a window-object hook event for h.
func (f *Fake) EmitWindow(event uint32, h native.Handle) bool {
	return f.Emit(native.WinEvent{
		Event:    event,
		Hwnd:     h,
		ObjectID: native.OBJID_WINDOW,
		ChildID:  native.CHILDID_SELF,
	})
}

// Tick fires a timer.
func (f *Fake) Tick(kind native.TimerKind) bool {
	s := f.currentSink()
	if s == nil {
		return false
	}
	s.Timer(kind)
	return true
}

// DisplayChange broadcasts WM_DISPLAYCHANGE.
func (f *Fake) DisplayChange() bool {
	s := f.currentSink()
	if s == nil {
		return false
	}
	s.DisplayChange()
	return true
}

// SettingChange broadcasts WM_SETTINGCHANGE.
func (f *Fake) SettingChange() bool {
	s := f.currentSink()
	if s == nil {
		return false
	}
	s.SettingChange()
	return true
}

func (f *Fake) takeFailure(op string) error {
	err, ok := f.fail[op]
	if ok {
		delete(f.fail, op)
	}
	return err
}

func invalid(op string) error {
	return native.NewError(op, native.ERROR_INVALID_WINDOW_HANDLE)
}

func (f *Fake) lookup(op string, h native.Handle) (*Window, error) {
	if err := f.takeFailure(op); err != nil {
		return nil, err
	}
	w, ok := f.windows[h]
	if !ok {
		return nil, invalid(op)
	}
	return w, nil
}

func (f *Fake) Version() native.OSVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *Fake) EnumWindows() ([]native.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("EnumWindows"); err != nil {
		return nil, err
	}
	return append([]native.Handle(nil), f.order...), nil
}

func (f *Fake) IsWindow(h native.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.windows[h]
	return ok
}

func (f *Fake) IsWindowVisible(h native.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	return ok && w.Visible
}

func (f *Fake) RootAncestor(h native.Handle) native.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok {
		return 0
	}
	if w.Root != 0 {
		return w.Root
	}
	return h
}

func (f *Fake) Style(h native.Handle) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("Style", h)
	if err != nil {
		return 0, err
	}
	return w.Style, nil
}

func (f *Fake) ExStyle(h native.Handle) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("ExStyle", h)
	if err != nil {
		return 0, err
	}
	return w.ExStyle, nil
}

func (f *Fake) Cloaked(h native.Handle) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("Cloaked", h)
	if err != nil {
		return 0, err
	}
	return w.Cloaked, nil
}

func (f *Fake) TextLength(h native.Handle) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("TextLength", h)
	if err != nil {
		return 0, err
	}
	return len([]rune(w.Title)), nil
}

func (f *Fake) WindowText(h native.Handle, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("WindowText", h)
	if err != nil {
		return "", err
	}
	if w.Hung {
		return "", native.NewError("WindowText", native.ERROR_TIMEOUT)
	}
	return w.Title, nil
}

func (f *Fake) Rect(h native.Handle) (geom.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("Rect", h)
	if err != nil {
		return geom.Rect{}, err
	}
	return w.Rect, nil
}

func (f *Fake) Placement(h native.Handle) (native.ShowCmd, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("Placement", h)
	if err != nil {
		return 0, err
	}
	return w.ShowCmd, nil
}

func (f *Fake) Sibling(h native.Handle, next bool) native.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.order {
		if o != h {
			continue
		}
		if next && i+1 < len(f.order) {
			return f.order[i+1]
		}
		if !next && i > 0 {
			return f.order[i-1]
		}
		return 0
	}
	return 0
}

func (f *Fake) ProcessID(h native.Handle) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("ProcessID", h)
	if err != nil {
		return 0, err
	}
	return w.PID, nil
}

func (f *Fake) ProbeAccess(h native.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	return ok && !w.NoAccess
}

func (f *Fake) ExtendedFrameBounds(h native.Handle) (geom.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("ExtendedFrameBounds", h)
	if err != nil {
		return geom.Rect{}, err
	}
	if w.Frame.IsEmpty() {
		return w.Rect, nil
	}
	return w.Frame, nil
}

func (f *Fake) MinMaxInfo(h native.Handle, _ time.Duration) (native.MinMax, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.lookup("MinMaxInfo", h)
	if err != nil {
		return native.MinMax{}, err
	}
	if w.Hung {
		return native.MinMax{}, native.NewError("MinMaxInfo", native.ERROR_TIMEOUT)
	}
	return w.MinMax, nil
}

func (f *Fake) SetWindowPos(h, insertAfter native.Handle, r geom.Rect, flags uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "SetWindowPos", Handle: h, InsertAfter: insertAfter, Rect: r, Flags: flags})
	w, err := f.lookup("SetWindowPos", h)
	if err != nil {
		return err
	}

	cur := w.Rect
	next := cur
	if flags&native.SWP_NOMOVE == 0 {
		next = geom.OffsetAndSize(r.Left, r.Top, next.Width(), next.Height())
	}
	if flags&native.SWP_NOSIZE == 0 {
		next = geom.OffsetAndSize(next.Left, next.Top, r.Width(), r.Height())
	}
	w.Rect = next

	if flags&native.SWP_NOZORDER == 0 {
		f.reorder(h, insertAfter, w)
	}
	return nil
}

func (f *Fake) reorder(h, insertAfter native.Handle, w *Window) {
	rest := make([]native.Handle, 0, len(f.order))
	for _, o := range f.order {
		if o != h {
			rest = append(rest, o)
		}
	}

	switch insertAfter {
	case native.HWND_TOPMOST:
		w.ExStyle |= native.WS_EX_TOPMOST
		f.order = append([]native.Handle{h}, rest...)
	case native.HWND_NOTOPMOST:
		w.ExStyle &^= native.WS_EX_TOPMOST
		idx := len(rest)
		for i, o := range rest {
			if ow, ok := f.windows[o]; !ok || ow.ExStyle&native.WS_EX_TOPMOST == 0 {
				idx = i
				break
			}
		}
		f.order = insertAt(rest, idx, h)
	case native.HWND_TOP:
		f.order = append([]native.Handle{h}, rest...)
	case native.HWND_BOTTOM:
		f.order = append(rest, h)
	default:
		idx := len(rest)
		for i, o := range rest {
			if o == insertAfter {
				idx = i + 1
				break
			}
		}
		f.order = insertAt(rest, idx, h)
	}
}

func insertAt(hs []native.Handle, idx int, h native.Handle) []native.Handle {
	out := make([]native.Handle, 0, len(hs)+1)
	out = append(out, hs[:idx]...)
	out = append(out, h)
	return append(out, hs[idx:]...)
}

func (f *Fake) ShowWindow(h native.Handle, cmd native.ShowCmd) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "ShowWindow", Handle: h, Show: cmd})
	w, ok := f.windows[h]
	if !ok {
		return false
	}
	was := w.Visible
	switch {
	case cmd == native.SW_HIDE:
		w.Visible = false
	case cmd.Minimized():
		w.ShowCmd = native.SW_SHOWMINIMIZED
		w.Visible = true
	case cmd.Maximized():
		w.ShowCmd = native.SW_SHOWMAXIMIZED
		w.Visible = true
	default:
		w.ShowCmd = native.SW_SHOWNORMAL
		w.Visible = true
	}
	return was
}

func (f *Fake) SetForeground(h native.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "SetForeground", Handle: h})
	if _, ok := f.windows[h]; !ok {
		return false
	}
	f.foreground = h
	return true
}

func (f *Fake) PostClose(h native.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "PostClose", Handle: h})
	_, err := f.lookup("PostClose", h)
	return err
}

func (f *Fake) ForegroundWindow() native.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

func (f *Fake) CursorPos() (geom.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursorErr != nil {
		return geom.Point{}, f.cursorErr
	}
	return f.cursor, nil
}

func (f *Fake) EnumMonitors() ([]native.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("EnumMonitors"); err != nil {
		return nil, err
	}
	if f.emptyEnums > 0 {
		f.emptyEnums--
		return nil, nil
	}
	out := make([]native.Monitor, 0, len(f.monitors))
	for m := range f.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *Fake) MonitorInfo(m native.Monitor) (native.MonitorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("MonitorInfo"); err != nil {
		return native.MonitorInfo{}, err
	}
	info, ok := f.monitors[m]
	if !ok {
		return native.MonitorInfo{}, native.NewError("MonitorInfo", native.ERROR_INVALID_MONITOR_HANDLE)
	}
	return info, nil
}

func (f *Fake) VirtualScreen() geom.Rect {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r geom.Rect
	for _, info := range f.monitors {
		r = r.Union(info.Bounds)
	}
	return r
}

// Pump records sink and blocks until ctx is cancelled.
func (f *Fake) Pump(ctx context.Context, cfg native.PumpConfig, sink native.Sink) error {
	f.mu.Lock()
	f.sink = sink
	f.pumpCfg = cfg
	f.mu.Unlock()

	if cfg.Started != nil {
		cfg.Started()
	}
	f.pumpOnce.Do(func() { close(f.pumping) })

	<-ctx.Done()

	f.mu.Lock()
	f.sink = nil
	f.mu.Unlock()
	return nil
}
