package native

// Win32 numeric vocabulary shared by every binding. Names follow the
// Win32 headers.
const (
	ERROR_ACCESS_DENIED          = 5
	ERROR_TIMEOUT                = 1460
	ERROR_INVALID_WINDOW_HANDLE  = 1400
	ERROR_INVALID_MONITOR_HANDLE = 1461

	WS_CHILD       = 0x40000000
	WS_VISIBLE     = 0x10000000
	WS_SIZEBOX     = 0x00040000
	WS_MINIMIZEBOX = 0x00020000
	WS_MAXIMIZEBOX = 0x00010000

	WS_EX_TOPMOST     = 0x00000008
	WS_EX_ACCEPTFILES = 0x00000010
	WS_EX_TOOLWINDOW  = 0x00000080
	WS_EX_WINDOWEDGE  = 0x00000100
	WS_EX_APPWINDOW   = 0x00040000

	DWM_CLOAKED_APP       = 0x1
	DWM_CLOAKED_SHELL     = 0x2
	DWM_CLOAKED_INHERITED = 0x4

	SWP_NOSIZE         = 0x0001
	SWP_NOMOVE         = 0x0002
	SWP_NOZORDER       = 0x0004
	SWP_NOACTIVATE     = 0x0010
	SWP_ASYNCWINDOWPOS = 0x4000

	EVENT_MIN                   = 0x00000001
	EVENT_MAX                   = 0x7FFFFFFF
	EVENT_SYSTEM_FOREGROUND     = 0x0003
	EVENT_SYSTEM_MOVESIZESTART  = 0x000A
	EVENT_SYSTEM_MOVESIZEEND    = 0x000B
	EVENT_SYSTEM_DESKTOPSWITCH  = 0x0020
	EVENT_OBJECT_CREATE         = 0x8000
	EVENT_OBJECT_DESTROY        = 0x8001
	EVENT_OBJECT_LOCATIONCHANGE = 0x800B
	EVENT_OBJECT_NAMECHANGE     = 0x800C

	OBJID_WINDOW = 0
	OBJID_CURSOR = -9
	CHILDID_SELF = 0
)

// Show commands.
const (
	SW_HIDE            ShowCmd = 0
	SW_SHOWNORMAL      ShowCmd = 1
	SW_NORMAL          ShowCmd = 1
	SW_SHOWMINIMIZED   ShowCmd = 2
	SW_SHOWMAXIMIZED   ShowCmd = 3
	SW_MAXIMIZE        ShowCmd = 3
	SW_SHOWNOACTIVATE  ShowCmd = 4
	SW_SHOW            ShowCmd = 5
	SW_MINIMIZE        ShowCmd = 6
	SW_SHOWMINNOACTIVE ShowCmd = 7
	SW_SHOWNA          ShowCmd = 8
	SW_RESTORE         ShowCmd = 9
	SW_FORCEMINIMIZE   ShowCmd = 11
)

// Special insert-after handles for SetWindowPos.
const (
	HWND_TOP       Handle = 0
	HWND_BOTTOM    Handle = 1
	HWND_TOPMOST   Handle = ^Handle(0)
	HWND_NOTOPMOST Handle = ^Handle(1)
)

// Minimized reports whether cmd is one of the minimized show states.
func (c ShowCmd) Minimized() bool {
	switch c {
	case SW_SHOWMINIMIZED, SW_MINIMIZE, SW_SHOWMINNOACTIVE, SW_FORCEMINIMIZE:
		return true
	}
	return false
}

// Maximized reports whether cmd is the maximized show state.
func (c ShowCmd) Maximized() bool {
	return c == SW_SHOWMAXIMIZED
}
