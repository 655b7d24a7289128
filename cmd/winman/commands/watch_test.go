package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/window"
	"github.com/bryanchriswhite/winman/internal/workspace"
)

func TestPrintEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 4, 5, 6e6, time.UTC)
	editor := &workspace.WindowInfo{Handle: 0x10, Title: "editor", Bounds: geom.Rect{Right: 10, Bottom: 10}, State: window.Maximized}

	tests := []struct {
		name string
		ev   workspace.Event
		want string
	}{
		{
			name: "window",
			ev:   workspace.Event{Kind: workspace.KindWindowAdded, Window: editor},
			want: `0x10 "editor" maximized`,
		},
		{
			name: "focus lost",
			ev:   workspace.Event{Kind: workspace.KindFocusChanged, PreviousWindow: editor},
			want: `0x10 "editor" -> none`,
		},
		{
			name: "desktop switch",
			ev: workspace.Event{
				Kind:            workspace.KindCurrentDesktopChanged,
				Desktop:         &workspace.DesktopInfo{Index: 1, Name: "Work"},
				PreviousDesktop: &workspace.DesktopInfo{Index: 0},
			},
			want: `0 -> 1 "Work"`,
		},
		{
			name: "cursor",
			ev:   workspace.Event{Kind: workspace.KindCursorMoved, Cursor: &geom.Point{X: 3, Y: 4}},
			want: "(3, 4)",
		},
		{
			name: "error",
			ev:   workspace.Event{Kind: workspace.KindError, Error: "boom"},
			want: "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ev.Time = at
			var b strings.Builder
			printEvent(&b, tt.ev)
			got := b.String()
			if !strings.HasPrefix(got, "15:04:05.006  "+string(tt.ev.Kind)) {
				t.Errorf("printEvent() = %q, want time and kind prefix", got)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("printEvent() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
