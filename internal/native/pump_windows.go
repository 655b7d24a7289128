//go:build windows

package native

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/winman/internal/logger"
)

var errPumpRunning = errors.New("native: a message pump is already running")

type sinkBox struct {
	sink Sink
}

// Only one pump runs per process; the hook and window procedures reach the
// active sink through this pointer.
var (
	activeSink atomic.Pointer[sinkBox]

	winEventProc = windows.NewCallback(func(hook, event, hwnd, idObject, idChild, thread, evTime uintptr) uintptr {
		if box := activeSink.Load(); box != nil {
			box.sink.WinEvent(WinEvent{
				Event:    uint32(event),
				Hwnd:     Handle(hwnd),
				ObjectID: int32(idObject),
				ChildID:  int32(idChild),
				Thread:   uint32(thread),
				Time:     uint32(evTime),
			})
		}
		return 0
	})

	pumpWndProc = windows.NewCallback(func(hwnd, message, wparam, lparam uintptr) uintptr {
		box := activeSink.Load()
		switch message {
		case WM_TIMER:
			if box != nil {
				box.sink.Timer(TimerKind(wparam))
			}
			return 0
		case WM_DISPLAYCHANGE:
			if box != nil {
				box.sink.DisplayChange()
			}
		case WM_SETTINGCHANGE:
			if box != nil {
				box.sink.SettingChange()
			}
		case wmStop:
			procPostQuitMessage.Call(0)
			return 0
		}
		r, _, _ := procDefWindowProcW.Call(hwnd, message, wparam, lparam)
		return r
	})

	registerClassOnce sync.Once
	registerClassErr  error
	pumpClassName     = windows.StringToUTF16Ptr("WinmanPumpWindow")
)

func registerPumpClass() error {
	registerClassOnce.Do(func() {
		var instance windows.Handle
		if err := windows.GetModuleHandleEx(0, nil, &instance); err != nil {
			registerClassErr = err
			return
		}
		wc := wndClassEx{
			WndProc:   pumpWndProc,
			Instance:  instance,
			ClassName: pumpClassName,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
		if r == 0 {
			registerClassErr = lastError("RegisterClassEx", err)
		}
	})
	return registerClassErr
}

// Pump runs the hook and timer message loop on a locked OS thread. The
// receiving window is a hidden top-level window so that it also gets the
// WM_DISPLAYCHANGE and WM_SETTINGCHANGE broadcasts.
func (s *Win32) Pump(ctx context.Context, cfg PumpConfig, sink Sink) error {
	if !activeSink.CompareAndSwap(nil, &sinkBox{sink: sink}) {
		return errPumpRunning
	}
	defer activeSink.Store(nil)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := logger.WithComponent("native")

	if err := registerPumpClass(); err != nil {
		return err
	}

	hwnd, _, err := procCreateWindowExW.Call(
		WS_EX_TOOLWINDOW,
		uintptr(unsafe.Pointer(pumpClassName)),
		0,
		0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	)
	if hwnd == 0 {
		return lastError("CreateWindowEx", err)
	}
	defer procDestroyWindow.Call(hwnd)

	hook, _, err := procSetWinEventHook.Call(
		uintptr(cfg.EventMin),
		uintptr(cfg.EventMax),
		0,
		winEventProc,
		0,
		0,
		WINEVENT_OUTOFCONTEXT,
	)
	if hook == 0 {
		return lastError("SetWinEventHook", err)
	}
	defer procUnhookWinEvent.Call(hook)

	if cfg.WatchInterval > 0 {
		procSetTimer.Call(hwnd, uintptr(TimerWatch), uintptr(cfg.WatchInterval.Milliseconds()), 0)
		defer procKillTimer.Call(hwnd, uintptr(TimerWatch))
	}
	if cfg.RecentInterval > 0 {
		procSetTimer.Call(hwnd, uintptr(TimerRecent), uintptr(cfg.RecentInterval.Milliseconds()), 0)
		defer procKillTimer.Call(hwnd, uintptr(TimerRecent))
	}

	log.Debug().
		Dur("watch_interval", cfg.WatchInterval).
		Dur("recent_interval", cfg.RecentInterval).
		Msg("Message pump started")

	if cfg.Started != nil {
		cfg.Started()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			procPostMessageW.Call(hwnd, wmStop, 0, 0)
		case <-stop:
		}
	}()

	var m msg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return lastError("GetMessage", err)
		case 0:
			log.Debug().Msg("Message pump stopped")
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}
