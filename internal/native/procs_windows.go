//go:build windows

package native

import (
	"errors"

	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/winman/internal/geom"
)

// DLLs, loaded lazily on first use
var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	dwmapi = windows.NewLazySystemDLL("dwmapi.dll")
	shcore = windows.NewLazySystemDLL("shcore.dll")
)

// User32 procs
var (
	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetAncestor              = user32.NewProc("GetAncestor")
	procGetWindowLongW           = user32.NewProc("GetWindowLongW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetWindowPlacement       = user32.NewProc("GetWindowPlacement")
	procGetWindow                = user32.NewProc("GetWindow")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procSetWindowPos             = user32.NewProc("SetWindowPos")
	procShowWindow               = user32.NewProc("ShowWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procSendMessageTimeoutW      = user32.NewProc("SendMessageTimeoutW")
	procGetCursorPos             = user32.NewProc("GetCursorPos")
	procGetSystemMetrics         = user32.NewProc("GetSystemMetrics")
	procEnumDisplayMonitors      = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW          = user32.NewProc("GetMonitorInfoW")
	procEnumDisplaySettingsW     = user32.NewProc("EnumDisplaySettingsW")
	procSetWinEventHook          = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent           = user32.NewProc("UnhookWinEvent")
	procSetTimer                 = user32.NewProc("SetTimer")
	procKillTimer                = user32.NewProc("KillTimer")
	procGetMessageW              = user32.NewProc("GetMessageW")
	procTranslateMessage         = user32.NewProc("TranslateMessage")
	procDispatchMessageW         = user32.NewProc("DispatchMessageW")
	procDefWindowProcW           = user32.NewProc("DefWindowProcW")
	procRegisterClassExW         = user32.NewProc("RegisterClassExW")
	procCreateWindowExW          = user32.NewProc("CreateWindowExW")
	procDestroyWindow            = user32.NewProc("DestroyWindow")
	procPostQuitMessage          = user32.NewProc("PostQuitMessage")
)

// Dwmapi and Shcore procs
var (
	procDwmGetWindowAttribute = dwmapi.NewProc("DwmGetWindowAttribute")
	procGetDpiForMonitor      = shcore.NewProc("GetDpiForMonitor")
)

// Windows-only constants
const (
	GWL_STYLE   = -16
	GWL_EXSTYLE = -20

	GA_ROOT = 2

	GW_HWNDNEXT = 2
	GW_HWNDPREV = 3

	WM_CLOSE         = 0x0010
	WM_GETTEXT       = 0x000D
	WM_GETTEXTLENGTH = 0x000E
	WM_GETMINMAXINFO = 0x0024
	WM_DISPLAYCHANGE = 0x007E
	WM_SETTINGCHANGE = 0x001A
	WM_TIMER         = 0x0113
	WM_USER          = 0x0400

	SMTO_ABORTIFHUNG = 0x0002

	DWMWA_EXTENDED_FRAME_BOUNDS = 9
	DWMWA_CLOAKED               = 14

	WINEVENT_OUTOFCONTEXT = 0x0000

	SM_XVIRTUALSCREEN  = 76
	SM_YVIRTUALSCREEN  = 77
	SM_CXVIRTUALSCREEN = 78
	SM_CYVIRTUALSCREEN = 79

	DISPLAY_DEVICE_MIRRORING_DRIVER = 0x00000008
	ENUM_CURRENT_SETTINGS           = 0xFFFFFFFF
	MDT_EFFECTIVE_DPI               = 0

	PROCESS_QUERY_INFORMATION = 0x0400

	// wmStop asks the pump window to post WM_QUIT.
	wmStop = WM_USER + 1
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type point struct {
	X, Y int32
}

type windowPlacement struct {
	Length         uint32
	Flags          uint32
	ShowCmd        uint32
	MinPosition    point
	MaxPosition    point
	NormalPosition rect
}

type minMaxInfo struct {
	Reserved     point
	MaxSize      point
	MaxPosition  point
	MinTrackSize point
	MaxTrackSize point
}

type monitorInfoEx struct {
	Size    uint32
	Monitor rect
	Work    rect
	Flags   uint32
	Device  [32]uint16
}

type devMode struct {
	DeviceName       [32]uint16
	SpecVersion      uint16
	DriverVersion    uint16
	Size             uint16
	DriverExtra      uint16
	Fields           uint32
	Position         point
	Orientation      uint32
	FixedOutput      uint32
	Color            int16
	Duplex           int16
	YResolution      int16
	TTOption         int16
	Collate          int16
	FormName         [32]uint16
	LogPixels        uint16
	BitsPerPel       uint32
	PelsWidth        uint32
	PelsHeight       uint32
	DisplayFlags     uint32
	DisplayFrequency uint32
	ICMMethod        uint32
	ICMIntent        uint32
	MediaType        uint32
	DitherType       uint32
	Reserved1        uint32
	Reserved2        uint32
	PanningWidth     uint32
	PanningHeight    uint32
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

func (r rect) toGeom() geom.Rect {
	return geom.Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}
}

// lastError converts the error returned by LazyProc.Call into an *Error.
func lastError(op string, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) && errno != 0 {
		return NewError(op, uint32(errno))
	}
	return NewError(op, 0)
}

// hresultError converts a failed HRESULT into an *Error.
func hresultError(op string, hr uintptr) error {
	return NewError(op, uint32(hr))
}
