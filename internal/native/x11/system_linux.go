//go:build linux

package x11

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// _NET_WM_STATE client message actions
const (
	stateRemove = 0
	stateAdd    = 1
)

// sourcePager marks client messages as coming from a pager, which window
// managers honor without focus-stealing checks.
const sourcePager = 2

// X11 is the System binding for an X11 session.
type X11 struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	version native.OSVersion
}

var _ native.System = (*X11)(nil)

// New connects to the X server named by $DISPLAY.
func New() (*X11, error) {
	log := logger.WithComponent("x11")

	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	if err := randr.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	s := &X11{
		xu:      xu,
		root:    xu.RootWin(),
		version: kernelVersion(),
	}

	wm, err := ewmh.GetEwmhWM(xu)
	if err != nil {
		log.Warn().Err(err).Msg("Window manager is not EWMH compliant, results will be partial")
	}
	log.Info().
		Str("wm", wm).
		Int("kernel_major", s.version.Major).
		Int("kernel_minor", s.version.Minor).
		Msg("X11 binding ready")
	return s, nil
}

// kernelVersion reports the running kernel as an OSVersion.
func kernelVersion() native.OSVersion {
	var v native.OSVersion
	raw, err := host.KernelVersion()
	if err != nil {
		return v
	}
	fmt.Sscanf(raw, "%d.%d.%d", &v.Major, &v.Minor, &v.Build)
	return v
}

// Close disconnects from the X server.
func (s *X11) Close() {
	s.xu.Conn().Close()
}

func (s *X11) Version() native.OSVersion {
	return s.version
}

// fail turns an X error into a native error. xgbutil flattens X errors into
// strings, so a dead window is detected by asking the server again.
func (s *X11) fail(op string, h native.Handle, err error) error {
	if !s.IsWindow(h) {
		return fmt.Errorf("%w: %v", native.NewError(op, native.ERROR_INVALID_WINDOW_HANDLE), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *X11) stacking() ([]xproto.Window, error) {
	wins, err := ewmh.ClientListStackingGet(s.xu)
	if err == nil && len(wins) > 0 {
		return wins, nil
	}
	return ewmh.ClientListGet(s.xu)
}

// EnumWindows lists managed clients topmost first. _NET_CLIENT_LIST_STACKING
// is ordered bottom to top.
func (s *X11) EnumWindows() ([]native.Handle, error) {
	wins, err := s.stacking()
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	out := make([]native.Handle, len(wins))
	for i, w := range wins {
		out[len(wins)-1-i] = native.Handle(w)
	}
	return out, nil
}

func (s *X11) IsWindow(h native.Handle) bool {
	if h == 0 {
		return false
	}
	_, err := xproto.GetWindowAttributes(s.xu.Conn(), xproto.Window(h)).Reply()
	return err == nil
}

func (s *X11) iconic(w xproto.Window) bool {
	st, err := icccm.WmStateGet(s.xu, w)
	return err == nil && st.State == icccm.StateIconic
}

// IsWindowVisible follows Win32 in treating minimized windows and windows
// of inactive desktops as visible. Window managers unmap both.
func (s *X11) IsWindowVisible(h native.Handle) bool {
	w := xproto.Window(h)
	attrs, err := xproto.GetWindowAttributes(s.xu.Conn(), w).Reply()
	if err != nil {
		return false
	}
	if attrs.MapState == xproto.MapStateViewable || s.iconic(w) {
		return true
	}
	c, err := s.Cloaked(h)
	return err == nil && c != 0
}

// RootAncestor returns h. Managed clients are top-level by definition; the
// frames window managers reparent them into are never reported.
func (s *X11) RootAncestor(h native.Handle) native.Handle {
	return h
}

func (s *X11) fixedSize(w xproto.Window) bool {
	nh, err := icccm.WmNormalHintsGet(s.xu, w)
	if err != nil {
		return false
	}
	const both = icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize
	return nh.Flags&both == both && nh.MinWidth == nh.MaxWidth && nh.MinHeight == nh.MaxHeight
}

func (s *X11) Style(h native.Handle) (uint32, error) {
	if !s.IsWindow(h) {
		return 0, native.NewError("Style", native.ERROR_INVALID_WINDOW_HANDLE)
	}
	w := xproto.Window(h)
	actions, _ := ewmh.WmAllowedActionsGet(s.xu, w)
	return windowStyle(actions, s.fixedSize(w), s.IsWindowVisible(h)), nil
}

func (s *X11) ExStyle(h native.Handle) (uint32, error) {
	if !s.IsWindow(h) {
		return 0, native.NewError("ExStyle", native.ERROR_INVALID_WINDOW_HANDLE)
	}
	w := xproto.Window(h)
	types, _ := ewmh.WmWindowTypeGet(s.xu, w)
	states, _ := ewmh.WmStateGet(s.xu, w)
	owner, err := icccm.WmTransientForGet(s.xu, w)
	return exStyle(types, states, err == nil && owner != 0), nil
}

// Cloaked reports windows of inactive desktops as shell-cloaked.
func (s *X11) Cloaked(h native.Handle) (uint32, error) {
	desk, err := ewmh.WmDesktopGet(s.xu, xproto.Window(h))
	if err != nil {
		if !s.IsWindow(h) {
			return 0, s.fail("Cloaked", h, err)
		}
		return 0, nil
	}
	current, err := ewmh.CurrentDesktopGet(s.xu)
	if err != nil {
		return 0, nil
	}
	return cloaked(desk, current), nil
}

func (s *X11) title(h native.Handle, op string) (string, error) {
	w := xproto.Window(h)
	if name, err := ewmh.WmNameGet(s.xu, w); err == nil && name != "" {
		return name, nil
	}
	name, err := icccm.WmNameGet(s.xu, w)
	if err != nil {
		if !s.IsWindow(h) {
			return "", s.fail(op, h, err)
		}
		return "", nil
	}
	return name, nil
}

func (s *X11) TextLength(h native.Handle) (int, error) {
	t, err := s.title(h, "TextLength")
	return len(t), err
}

// WindowText reads the title. The X server answers for the client, so a
// hung client cannot block the call and timeout is not needed.
func (s *X11) WindowText(h native.Handle, _ time.Duration) (string, error) {
	return s.title(h, "WindowText")
}

// Rect returns the frame rectangle, decorations included.
func (s *X11) Rect(h native.Handle) (geom.Rect, error) {
	g, err := xwindow.New(s.xu, xproto.Window(h)).DecorGeometry()
	if err != nil {
		return geom.Rect{}, s.fail("Rect", h, err)
	}
	return geom.OffsetAndSize(g.X(), g.Y(), g.Width(), g.Height()), nil
}

func (s *X11) Placement(h native.Handle) (native.ShowCmd, error) {
	w := xproto.Window(h)
	states, err := ewmh.WmStateGet(s.xu, w)
	if err != nil && !s.IsWindow(h) {
		return 0, s.fail("Placement", h, err)
	}
	return showCmd(states, s.iconic(w)), nil
}

// Sibling walks the stacking order; next moves towards the bottom.
func (s *X11) Sibling(h native.Handle, next bool) native.Handle {
	order, err := s.EnumWindows()
	if err != nil {
		return 0
	}
	for i, o := range order {
		if o != h {
			continue
		}
		switch {
		case next && i+1 < len(order):
			return order[i+1]
		case !next && i > 0:
			return order[i-1]
		}
		return 0
	}
	return 0
}

func (s *X11) ProcessID(h native.Handle) (uint32, error) {
	pid, err := ewmh.WmPidGet(s.xu, xproto.Window(h))
	if err != nil {
		return 0, s.fail("ProcessID", h, err)
	}
	return uint32(pid), nil
}

// ProbeAccess reports whether the owning process still runs. Any client
// may manipulate any window under X11, so there is nothing else to check.
func (s *X11) ProbeAccess(h native.Handle) bool {
	if !s.IsWindow(h) {
		return false
	}
	pid, err := s.ProcessID(h)
	if err != nil {
		// Remote clients publish no pid.
		return true
	}
	ok, err := process.PidExists(int32(pid))
	return err != nil || ok
}

func (s *X11) ExtendedFrameBounds(h native.Handle) (geom.Rect, error) {
	return s.Rect(h)
}

func (s *X11) MinMaxInfo(h native.Handle, _ time.Duration) (native.MinMax, error) {
	mm := native.MinMax{MaxTrack: geom.Point{X: math.MaxInt32, Y: math.MaxInt32}}
	nh, err := icccm.WmNormalHintsGet(s.xu, xproto.Window(h))
	if err != nil {
		if !s.IsWindow(h) {
			return mm, s.fail("MinMaxInfo", h, err)
		}
		return mm, nil
	}
	if nh.Flags&icccm.SizeHintPMinSize != 0 {
		mm.MinTrack = geom.Point{X: int(nh.MinWidth), Y: int(nh.MinHeight)}
	}
	if nh.Flags&icccm.SizeHintPMaxSize != 0 && nh.MaxWidth > 0 && nh.MaxHeight > 0 {
		mm.MaxTrack = geom.Point{X: int(nh.MaxWidth), Y: int(nh.MaxHeight)}
	}
	return mm, nil
}

func (s *X11) restack(w xproto.Window, sibling xproto.Window, mode uint32) error {
	if sibling == 0 {
		return xproto.ConfigureWindowChecked(s.xu.Conn(), w,
			xproto.ConfigWindowStackMode, []uint32{mode}).Check()
	}
	return xproto.ConfigureWindowChecked(s.xu.Conn(), w,
		xproto.ConfigWindowSibling|xproto.ConfigWindowStackMode,
		[]uint32{uint32(sibling), mode}).Check()
}

// SetWindowPos moves and restacks a window. HWND_TOPMOST and
// HWND_NOTOPMOST toggle _NET_WM_STATE_ABOVE.
func (s *X11) SetWindowPos(h, insertAfter native.Handle, r geom.Rect, flags uint32) error {
	w := xproto.Window(h)

	if flags&(native.SWP_NOMOVE|native.SWP_NOSIZE) != native.SWP_NOMOVE|native.SWP_NOSIZE {
		cur, err := s.Rect(h)
		if err != nil {
			return err
		}
		x, y, width, height := r.Left, r.Top, r.Width(), r.Height()
		if flags&native.SWP_NOMOVE != 0 {
			x, y = cur.Left, cur.Top
		}
		if flags&native.SWP_NOSIZE != 0 {
			width, height = cur.Width(), cur.Height()
		}
		if err := ewmh.MoveresizeWindow(s.xu, w, x, y, width, height); err != nil {
			// Fallback to direct window manipulation
			xwindow.New(s.xu, w).MoveResize(x, y, width, height)
		}
	}

	if flags&native.SWP_NOZORDER != 0 {
		return nil
	}
	var err error
	switch insertAfter {
	case native.HWND_TOPMOST:
		err = ewmh.WmStateReq(s.xu, w, stateAdd, stateAbove)
	case native.HWND_NOTOPMOST:
		err = ewmh.WmStateReq(s.xu, w, stateRemove, stateAbove)
	case native.HWND_TOP:
		err = s.restack(w, 0, xproto.StackModeAbove)
	case native.HWND_BOTTOM:
		err = s.restack(w, 0, xproto.StackModeBelow)
	default:
		err = s.restack(w, xproto.Window(insertAfter), xproto.StackModeBelow)
	}
	if err != nil {
		return s.fail("SetWindowPos", h, err)
	}
	return nil
}

// clientMessage sends an EWMH or ICCCM request to the root window.
func (s *X11) clientMessage(w xproto.Window, atomName string, data ...uint32) error {
	atom, err := xprop.Atm(s.xu, atomName)
	if err != nil {
		return fmt.Errorf("failed to intern %s: %w", atomName, err)
	}
	for len(data) < 5 {
		data = append(data, 0)
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: w,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}
	return xproto.SendEventChecked(
		s.xu.Conn(),
		false,
		s.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// ShowWindow maps show commands onto ICCCM iconify requests and the
// maximized states. It reports whether the window was visible before.
func (s *X11) ShowWindow(h native.Handle, cmd native.ShowCmd) bool {
	log := logger.WithComponent("x11")
	w := xproto.Window(h)
	wasVisible := s.IsWindowVisible(h)

	var err error
	switch {
	case cmd.Minimized():
		err = s.clientMessage(w, wmChangeState, icccm.StateIconic)
	case cmd == native.SW_MAXIMIZE:
		if err = ewmh.WmStateReq(s.xu, w, stateAdd, stateMaximizedVert); err == nil {
			err = ewmh.WmStateReq(s.xu, w, stateAdd, stateMaximizedHorz)
		}
	case cmd == native.SW_HIDE:
		err = xproto.UnmapWindowChecked(s.xu.Conn(), w).Check()
	case cmd == native.SW_RESTORE, cmd == native.SW_SHOWNORMAL:
		if s.iconic(w) {
			err = s.clientMessage(w, netActiveWindow, sourcePager)
			break
		}
		if err = ewmh.WmStateReq(s.xu, w, stateRemove, stateMaximizedVert); err == nil {
			err = ewmh.WmStateReq(s.xu, w, stateRemove, stateMaximizedHorz)
		}
	default:
		err = xproto.MapWindowChecked(s.xu.Conn(), w).Check()
	}
	if err != nil {
		log.Debug().Err(err).Stringer("hwnd", h).Uint32("cmd", uint32(cmd)).Msg("ShowWindow request failed")
	}
	return wasVisible
}

// SetForeground activates a window using _NET_ACTIVE_WINDOW.
func (s *X11) SetForeground(h native.Handle) bool {
	return s.clientMessage(xproto.Window(h), netActiveWindow, sourcePager) == nil
}

func (s *X11) PostClose(h native.Handle) error {
	if err := ewmh.CloseWindow(s.xu, xproto.Window(h)); err != nil {
		return s.fail("PostClose", h, err)
	}
	return nil
}

func (s *X11) ForegroundWindow() native.Handle {
	w, err := ewmh.ActiveWindowGet(s.xu)
	if err != nil {
		return 0
	}
	return native.Handle(w)
}

func (s *X11) CursorPos() (geom.Point, error) {
	p, err := xproto.QueryPointer(s.xu.Conn(), s.root).Reply()
	if err != nil {
		return geom.Point{}, fmt.Errorf("QueryPointer: %w", err)
	}
	return geom.Point{X: int(p.RootX), Y: int(p.RootY)}, nil
}

// EnumMonitors lists connected RandR outputs driving a CRTC. Outputs sharing
// a CRTC mirror each other; only the first is reported.
func (s *X11) EnumMonitors() ([]native.Monitor, error) {
	conn := s.xu.Conn()
	res, err := randr.GetScreenResources(conn, s.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	seen := make(map[randr.Crtc]bool)
	var out []native.Monitor
	for _, o := range res.Outputs {
		info, err := randr.GetOutputInfo(conn, o, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 || seen[info.Crtc] {
			continue
		}
		seen[info.Crtc] = true
		out = append(out, native.Monitor(o))
	}
	return out, nil
}

func (s *X11) MonitorInfo(m native.Monitor) (native.MonitorInfo, error) {
	conn := s.xu.Conn()
	res, err := randr.GetScreenResources(conn, s.root).Reply()
	if err != nil {
		return native.MonitorInfo{}, fmt.Errorf("failed to get screen resources: %w", err)
	}
	out, err := randr.GetOutputInfo(conn, randr.Output(m), res.ConfigTimestamp).Reply()
	if err != nil || out.Crtc == 0 {
		return native.MonitorInfo{}, native.NewError("MonitorInfo", native.ERROR_INVALID_MONITOR_HANDLE)
	}
	crtc, err := randr.GetCrtcInfo(conn, out.Crtc, res.ConfigTimestamp).Reply()
	if err != nil || crtc.Width == 0 || crtc.Height == 0 {
		return native.MonitorInfo{}, native.NewError("MonitorInfo", native.ERROR_INVALID_MONITOR_HANDLE)
	}

	info := native.MonitorInfo{
		DeviceID: string(out.Name),
		Bounds:   geom.OffsetAndSize(int(crtc.X), int(crtc.Y), int(crtc.Width), int(crtc.Height)),
		// X11 has a single screen-wide scale.
		Scaling: 1,
	}
	info.WorkArea = s.workArea(info.Bounds)
	for _, mode := range res.Modes {
		if mode.Id == uint32(crtc.Mode) {
			info.RefreshRate = refreshRate(mode.DotClock, mode.Htotal, mode.Vtotal)
			break
		}
	}
	return info, nil
}

// workArea clips the current desktop's _NET_WORKAREA to a monitor.
func (s *X11) workArea(bounds geom.Rect) geom.Rect {
	areas, err := ewmh.WorkareaGet(s.xu)
	if err != nil || len(areas) == 0 {
		return bounds
	}
	idx := 0
	if cur, err := ewmh.CurrentDesktopGet(s.xu); err == nil && int(cur) < len(areas) {
		idx = int(cur)
	}
	wa := areas[idx]
	clipped := bounds.Intersect(geom.OffsetAndSize(wa.X, wa.Y, int(wa.Width), int(wa.Height)))
	if clipped.IsEmpty() {
		return bounds
	}
	return clipped
}

func (s *X11) VirtualScreen() geom.Rect {
	g, err := xproto.GetGeometry(s.xu.Conn(), xproto.Drawable(s.root)).Reply()
	if err != nil {
		return geom.Rect{}
	}
	return geom.OffsetAndSize(0, 0, int(g.Width), int(g.Height))
}

// NumberOfDesktops and the methods below expose the EWMH desktop hints.
func (s *X11) NumberOfDesktops() (int, error) {
	n, err := ewmh.NumberOfDesktopsGet(s.xu)
	if err != nil {
		return 0, fmt.Errorf("failed to get desktop count: %w", err)
	}
	return int(n), nil
}

func (s *X11) CurrentDesktop() (int, error) {
	d, err := ewmh.CurrentDesktopGet(s.xu)
	if err != nil {
		return 0, fmt.Errorf("failed to get current desktop: %w", err)
	}
	return int(d), nil
}

func (s *X11) DesktopNames() ([]string, error) {
	names, err := ewmh.DesktopNamesGet(s.xu)
	if err != nil {
		// Window managers are not required to name desktops.
		return nil, nil
	}
	return names, nil
}

func (s *X11) SetCurrentDesktop(index int) error {
	return s.clientMessage(s.root, netCurrentDesktop, uint32(index), uint32(xproto.TimeCurrentTime))
}

// MoveWindowToDesktop sends a _NET_WM_DESKTOP request. The xgbutil helper
// for it panics on this library version, so the message is built here.
func (s *X11) MoveWindowToDesktop(h native.Handle, index int) error {
	if err := s.clientMessage(xproto.Window(h), netWmDesktop, uint32(index), sourcePager); err != nil {
		return s.fail("MoveWindowToDesktop", h, err)
	}
	return nil
}

// WindowDesktop returns the desktop index of h; sticky windows are on all.
func (s *X11) WindowDesktop(h native.Handle) (int, bool, error) {
	d, err := ewmh.WmDesktopGet(s.xu, xproto.Window(h))
	if err != nil {
		return 0, false, s.fail("WindowDesktop", h, err)
	}
	if d == stickyDesktop {
		return 0, true, nil
	}
	return int(d), false, nil
}

// WindowClass returns the WM_CLASS class name, or the instance name when
// the class is empty.
func (s *X11) WindowClass(h native.Handle) string {
	wc, err := icccm.WmClassGet(s.xu, xproto.Window(h))
	if err != nil {
		return ""
	}
	if c := strings.TrimSpace(wc.Class); c != "" {
		return c
	}
	return wc.Instance
}
