package x11

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bryanchriswhite/winman/internal/native"
)

func TestExStyle(t *testing.T) {
	tests := []struct {
		name      string
		types     []string
		states    []string
		transient bool
		want      uint32
	}{
		{name: "untyped", want: native.WS_EX_WINDOWEDGE | native.WS_EX_APPWINDOW},
		{name: "normal", types: []string{"_NET_WM_WINDOW_TYPE_NORMAL"}, want: native.WS_EX_WINDOWEDGE | native.WS_EX_APPWINDOW},
		{name: "untyped transient", transient: true, want: native.WS_EX_WINDOWEDGE},
		{name: "dialog", types: []string{"_NET_WM_WINDOW_TYPE_DIALOG"}, want: native.WS_EX_WINDOWEDGE},
		{name: "dock", types: []string{"_NET_WM_WINDOW_TYPE_DOCK"}, want: native.WS_EX_TOOLWINDOW},
		{name: "utility", types: []string{"_NET_WM_WINDOW_TYPE_UTILITY"}, want: native.WS_EX_TOOLWINDOW},
		{
			name:   "skip taskbar",
			types:  []string{"_NET_WM_WINDOW_TYPE_NORMAL"},
			states: []string{stateSkipTaskbar},
			want:   native.WS_EX_WINDOWEDGE | native.WS_EX_TOOLWINDOW,
		},
		{
			name:   "above",
			states: []string{stateAbove},
			want:   native.WS_EX_WINDOWEDGE | native.WS_EX_APPWINDOW | native.WS_EX_TOPMOST,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exStyle(tt.types, tt.states, tt.transient); got != tt.want {
				t.Errorf("exStyle() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestWindowStyle(t *testing.T) {
	all := uint32(native.WS_VISIBLE | native.WS_SIZEBOX | native.WS_MINIMIZEBOX | native.WS_MAXIMIZEBOX)
	tests := []struct {
		name    string
		actions []string
		fixed   bool
		visible bool
		want    uint32
	}{
		{name: "no actions published", visible: true, want: all},
		{name: "fixed size", fixed: true, visible: true, want: all &^ native.WS_SIZEBOX},
		{name: "hidden", want: all &^ native.WS_VISIBLE},
		{
			name:    "minimize only",
			actions: []string{actionMinimize, "_NET_WM_ACTION_CLOSE"},
			visible: true,
			want:    native.WS_VISIBLE | native.WS_MINIMIZEBOX,
		},
		{
			name:    "one maximize axis is not enough",
			actions: []string{actionResize, actionMaximizeHorz},
			want:    native.WS_SIZEBOX,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := windowStyle(tt.actions, tt.fixed, tt.visible); got != tt.want {
				t.Errorf("windowStyle() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestShowCmd(t *testing.T) {
	tests := []struct {
		name   string
		states []string
		iconic bool
		want   native.ShowCmd
	}{
		{name: "normal", want: native.SW_SHOWNORMAL},
		{name: "iconic", iconic: true, want: native.SW_SHOWMINIMIZED},
		{name: "hidden", states: []string{stateHidden, stateMaximizedVert, stateMaximizedHorz}, want: native.SW_SHOWMINIMIZED},
		{name: "maximized", states: []string{stateMaximizedHorz, stateMaximizedVert}, want: native.SW_SHOWMAXIMIZED},
		{name: "half maximized", states: []string{stateMaximizedVert}, want: native.SW_SHOWNORMAL},
		{name: "fullscreen", states: []string{stateFullscreen}, want: native.SW_SHOWMAXIMIZED},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := showCmd(tt.states, tt.iconic); got != tt.want {
				t.Errorf("showCmd() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCloaked(t *testing.T) {
	if got := cloaked(1, 1); got != 0 {
		t.Errorf("current desktop cloaked = %#x", got)
	}
	if got := cloaked(stickyDesktop, 3); got != 0 {
		t.Errorf("sticky window cloaked = %#x", got)
	}
	if got := cloaked(0, 1); got != native.DWM_CLOAKED_SHELL {
		t.Errorf("other desktop cloaked = %#x, want DWM_CLOAKED_SHELL", got)
	}
}

func TestRefreshRate(t *testing.T) {
	// 1920x1080@60 CVT reduced blanking.
	if got := refreshRate(138500000, 2080, 1111); got != 60 {
		t.Errorf("refreshRate() = %d, want 60", got)
	}
	if got := refreshRate(1, 0, 0); got != 0 {
		t.Errorf("refreshRate() with no timings = %d, want 0", got)
	}
}

func TestDiffClients(t *testing.T) {
	prev := map[native.Handle]bool{1: true, 2: true, 3: true}
	created, destroyed, set := diffClients(prev, []native.Handle{3, 4, 1})

	if diff := cmp.Diff([]native.Handle{4}, created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]native.Handle{2}, destroyed); diff != "" {
		t.Errorf("destroyed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[native.Handle]bool{1: true, 3: true, 4: true}, set); diff != "" {
		t.Errorf("set mismatch (-want +got):\n%s", diff)
	}
}
