//go:build windows

package native

import (
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/logger"
)

// Win32 is the System binding for the Windows desktop.
type Win32 struct {
	version OSVersion
}

var _ System = (*Win32)(nil)

// New returns the Windows binding.
func New() (*Win32, error) {
	v := windows.RtlGetVersion()
	if v == nil {
		return nil, fmt.Errorf("RtlGetVersion returned nil")
	}
	s := &Win32{version: OSVersion{
		Major: int(v.MajorVersion),
		Minor: int(v.MinorVersion),
		Build: int(v.BuildNumber),
		UBR:   readUBR(),
	}}
	logger.WithComponent("native").Info().
		Int("build", s.version.Build).
		Int("ubr", s.version.UBR).
		Msg("Windows binding ready")
	return s, nil
}

func readUBR() int {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `Software\Microsoft\Windows NT\CurrentVersion`, registry.QUERY_VALUE)
	if err != nil {
		return 0
	}
	defer k.Close()
	ubr, _, err := k.GetIntegerValue("UBR")
	if err != nil {
		return 0
	}
	return int(ubr)
}

func (s *Win32) Version() OSVersion {
	return s.version
}

// EnumWindows callbacks are created once; NewCallback slots are never freed.
var (
	enumMu       sync.Mutex
	enumHandles  []Handle
	enumMonitors []Monitor

	enumWindowsProc = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		enumHandles = append(enumHandles, Handle(hwnd))
		return 1
	})
	enumMonitorsProc = windows.NewCallback(func(hmon, _, _, _ uintptr) uintptr {
		enumMonitors = append(enumMonitors, Monitor(hmon))
		return 1
	})
)

func (s *Win32) EnumWindows() ([]Handle, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumHandles = nil
	r, _, err := procEnumWindows.Call(enumWindowsProc, 0)
	if r == 0 {
		return nil, lastError("EnumWindows", err)
	}
	out := enumHandles
	enumHandles = nil
	return out, nil
}

func (s *Win32) IsWindow(h Handle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

func (s *Win32) IsWindowVisible(h Handle) bool {
	r, _, _ := procIsWindowVisible.Call(uintptr(h))
	return r != 0
}

func (s *Win32) RootAncestor(h Handle) Handle {
	r, _, _ := procGetAncestor.Call(uintptr(h), GA_ROOT)
	return Handle(r)
}

// windowLong treats a zero result as an error only once the window is gone;
// zero is a legitimate style value and the thread's last error is unreliable
// across goroutine migration.
func (s *Win32) windowLong(h Handle, index int32, op string) (uint32, error) {
	r, _, _ := procGetWindowLongW.Call(uintptr(h), uintptr(index))
	if r == 0 && !s.IsWindow(h) {
		return 0, NewError(op, ERROR_INVALID_WINDOW_HANDLE)
	}
	return uint32(r), nil
}

func (s *Win32) Style(h Handle) (uint32, error) {
	return s.windowLong(h, GWL_STYLE, "GetWindowLong(GWL_STYLE)")
}

func (s *Win32) ExStyle(h Handle) (uint32, error) {
	return s.windowLong(h, GWL_EXSTYLE, "GetWindowLong(GWL_EXSTYLE)")
}

func (s *Win32) Cloaked(h Handle) (uint32, error) {
	var cloaked uint32
	hr, _, _ := procDwmGetWindowAttribute.Call(
		uintptr(h),
		DWMWA_CLOAKED,
		uintptr(unsafe.Pointer(&cloaked)),
		unsafe.Sizeof(cloaked),
	)
	if int32(hr) < 0 {
		return 0, hresultError("DwmGetWindowAttribute(DWMWA_CLOAKED)", hr)
	}
	return cloaked, nil
}

func (s *Win32) TextLength(h Handle) (int, error) {
	r, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if r == 0 && !s.IsWindow(h) {
		return 0, NewError("GetWindowTextLength", ERROR_INVALID_WINDOW_HANDLE)
	}
	return int(r), nil
}

func (s *Win32) sendTimeout(h Handle, message uint32, wparam, lparam uintptr, timeout time.Duration, op string) (uintptr, error) {
	var result uintptr
	r, _, err := procSendMessageTimeoutW.Call(
		uintptr(h),
		uintptr(message),
		wparam,
		lparam,
		SMTO_ABORTIFHUNG,
		uintptr(timeout.Milliseconds()),
		uintptr(unsafe.Pointer(&result)),
	)
	if r == 0 {
		return 0, lastError(op, err)
	}
	return result, nil
}

func (s *Win32) WindowText(h Handle, timeout time.Duration) (string, error) {
	n, err := s.sendTimeout(h, WM_GETTEXTLENGTH, 0, 0, timeout, "WM_GETTEXTLENGTH")
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]uint16, n+1)
	copied, err := s.sendTimeout(h, WM_GETTEXT, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])), timeout, "WM_GETTEXT")
	if err != nil {
		return "", err
	}
	if int(copied) < len(buf) {
		buf = buf[:copied]
	}
	return windows.UTF16ToString(buf), nil
}

func (s *Win32) Rect(h Handle) (geom.Rect, error) {
	var rc rect
	r, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&rc)))
	if r == 0 {
		return geom.Rect{}, lastError("GetWindowRect", err)
	}
	return rc.toGeom(), nil
}

func (s *Win32) Placement(h Handle) (ShowCmd, error) {
	wp := windowPlacement{}
	wp.Length = uint32(unsafe.Sizeof(wp))
	r, _, err := procGetWindowPlacement.Call(uintptr(h), uintptr(unsafe.Pointer(&wp)))
	if r == 0 {
		return 0, lastError("GetWindowPlacement", err)
	}
	return ShowCmd(wp.ShowCmd), nil
}

func (s *Win32) Sibling(h Handle, next bool) Handle {
	cmd := uintptr(GW_HWNDPREV)
	if next {
		cmd = GW_HWNDNEXT
	}
	r, _, _ := procGetWindow.Call(uintptr(h), cmd)
	return Handle(r)
}

func (s *Win32) ProcessID(h Handle) (uint32, error) {
	var pid uint32
	r, _, err := procGetWindowThreadProcessId.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	if r == 0 {
		return 0, lastError("GetWindowThreadProcessId", err)
	}
	return pid, nil
}

func (s *Win32) ProbeAccess(h Handle) bool {
	pid, err := s.ProcessID(h)
	if err != nil {
		return false
	}
	proc, err := windows.OpenProcess(PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		return false
	}
	windows.CloseHandle(proc)
	return true
}

func (s *Win32) ExtendedFrameBounds(h Handle) (geom.Rect, error) {
	var rc rect
	hr, _, _ := procDwmGetWindowAttribute.Call(
		uintptr(h),
		DWMWA_EXTENDED_FRAME_BOUNDS,
		uintptr(unsafe.Pointer(&rc)),
		unsafe.Sizeof(rc),
	)
	if int32(hr) < 0 {
		return geom.Rect{}, hresultError("DwmGetWindowAttribute(DWMWA_EXTENDED_FRAME_BOUNDS)", hr)
	}
	return rc.toGeom(), nil
}

func (s *Win32) MinMaxInfo(h Handle, timeout time.Duration) (MinMax, error) {
	mmi := minMaxInfo{
		MaxTrackSize: point{X: math.MaxInt32, Y: math.MaxInt32},
	}
	if _, err := s.sendTimeout(h, WM_GETMINMAXINFO, 0, uintptr(unsafe.Pointer(&mmi)), timeout, "WM_GETMINMAXINFO"); err != nil {
		return MinMax{}, err
	}
	return MinMax{
		MinTrack: geom.Point{X: int(mmi.MinTrackSize.X), Y: int(mmi.MinTrackSize.Y)},
		MaxTrack: geom.Point{X: int(mmi.MaxTrackSize.X), Y: int(mmi.MaxTrackSize.Y)},
	}, nil
}

func (s *Win32) SetWindowPos(h, insertAfter Handle, r geom.Rect, flags uint32) error {
	x, y := int32(r.Left), int32(r.Top)
	cx, cy := int32(r.Width()), int32(r.Height())
	ok, _, err := procSetWindowPos.Call(
		uintptr(h),
		uintptr(insertAfter),
		uintptr(x),
		uintptr(y),
		uintptr(cx),
		uintptr(cy),
		uintptr(flags),
	)
	if ok == 0 {
		return lastError("SetWindowPos", err)
	}
	return nil
}

func (s *Win32) ShowWindow(h Handle, cmd ShowCmd) bool {
	r, _, _ := procShowWindow.Call(uintptr(h), uintptr(cmd))
	return r != 0
}

func (s *Win32) SetForeground(h Handle) bool {
	r, _, _ := procSetForegroundWindow.Call(uintptr(h))
	return r != 0
}

func (s *Win32) PostClose(h Handle) error {
	r, _, err := procPostMessageW.Call(uintptr(h), WM_CLOSE, 0, 0)
	if r == 0 {
		return lastError("PostMessage(WM_CLOSE)", err)
	}
	return nil
}

func (s *Win32) ForegroundWindow() Handle {
	r, _, _ := procGetForegroundWindow.Call()
	return Handle(r)
}

func (s *Win32) CursorPos() (geom.Point, error) {
	var pt point
	r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if r == 0 {
		return geom.Point{}, lastError("GetCursorPos", err)
	}
	return geom.Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

func (s *Win32) EnumMonitors() ([]Monitor, error) {
	enumMu.Lock()
	enumMonitors = nil
	r, _, err := procEnumDisplayMonitors.Call(0, 0, enumMonitorsProc, 0)
	all := enumMonitors
	enumMonitors = nil
	enumMu.Unlock()

	if r == 0 {
		return nil, lastError("EnumDisplayMonitors", err)
	}

	out := all[:0]
	for _, m := range all {
		mi, err := monitorInfo(m)
		if err != nil {
			continue
		}
		if mi.Flags&DISPLAY_DEVICE_MIRRORING_DRIVER != 0 {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func monitorInfo(m Monitor) (monitorInfoEx, error) {
	mi := monitorInfoEx{}
	mi.Size = uint32(unsafe.Sizeof(mi))
	r, _, err := procGetMonitorInfoW.Call(uintptr(m), uintptr(unsafe.Pointer(&mi)))
	if r == 0 {
		return mi, lastError("GetMonitorInfo", err)
	}
	return mi, nil
}

func (s *Win32) MonitorInfo(m Monitor) (MonitorInfo, error) {
	mi, err := monitorInfo(m)
	if err != nil {
		return MonitorInfo{}, err
	}
	device := windows.UTF16ToString(mi.Device[:])

	dm := devMode{}
	dm.Size = uint16(unsafe.Sizeof(dm))
	name, err := windows.UTF16PtrFromString(device)
	if err != nil {
		return MonitorInfo{}, fmt.Errorf("monitor device name %q: %w", device, err)
	}
	r, _, err := procEnumDisplaySettingsW.Call(uintptr(unsafe.Pointer(name)), ENUM_CURRENT_SETTINGS, uintptr(unsafe.Pointer(&dm)))
	if r == 0 {
		return MonitorInfo{}, lastError("EnumDisplaySettings", err)
	}

	return MonitorInfo{
		DeviceID:    device,
		Bounds:      mi.Monitor.toGeom(),
		WorkArea:    mi.Work.toGeom(),
		Scaling:     s.dpiScale(m),
		RefreshRate: int(dm.DisplayFrequency),
	}, nil
}

func (s *Win32) dpiScale(m Monitor) float64 {
	perMonitor := s.version.Major > 6 || (s.version.Major == 6 && s.version.Minor >= 3)
	if !perMonitor || procGetDpiForMonitor.Find() != nil {
		return 1.0
	}
	var dpiX, dpiY uint32
	hr, _, _ := procGetDpiForMonitor.Call(uintptr(m), MDT_EFFECTIVE_DPI, uintptr(unsafe.Pointer(&dpiX)), uintptr(unsafe.Pointer(&dpiY)))
	if int32(hr) < 0 || dpiX == 0 {
		return 1.0
	}
	return float64(dpiX) / 96.0
}

func (s *Win32) VirtualScreen() geom.Rect {
	metric := func(idx uintptr) int {
		r, _, _ := procGetSystemMetrics.Call(idx)
		return int(int32(r))
	}
	return geom.OffsetAndSize(
		metric(SM_XVIRTUALSCREEN),
		metric(SM_YVIRTUALSCREEN),
		metric(SM_CXVIRTUALSCREEN),
		metric(SM_CYVIRTUALSCREEN),
	)
}
