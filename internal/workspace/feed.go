package workspace

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/winman/internal/display"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/vdesktop"
	"github.com/bryanchriswhite/winman/internal/window"
)

// Kind names a feed event.
type Kind string

const (
	KindWindowManaging  Kind = "window_managing"
	KindWindowAdded     Kind = "window_added"
	KindWindowRemoved   Kind = "window_removed"
	KindWindowDestroyed Kind = "window_destroyed"
	KindFocusChanged    Kind = "focus_changed"
	KindCursorMoved     Kind = "cursor_moved"

	KindWindowMoved          Kind = "window_moved"
	KindWindowStateChanged   Kind = "window_state_changed"
	KindWindowTopmostChanged Kind = "window_topmost_changed"
	KindWindowTitleChanged   Kind = "window_title_changed"

	KindDisplayAdded          Kind = "display_added"
	KindDisplayRemoved        Kind = "display_removed"
	KindPrimaryDisplayChanged Kind = "primary_display_changed"

	KindDesktopAdded          Kind = "desktop_added"
	KindDesktopRemoved        Kind = "desktop_removed"
	KindCurrentDesktopChanged Kind = "current_desktop_changed"

	KindError Kind = "error"
)

// Event is one entry of the event feed. Only the fields relevant to Kind
// are set; Previous holds the old window, display or desktop of a change.
type Event struct {
	Kind            Kind         `json:"kind"`
	Time            time.Time    `json:"time"`
	Window          *WindowInfo  `json:"window,omitempty"`
	PreviousWindow  *WindowInfo  `json:"previous_window,omitempty"`
	Display         *DisplayInfo `json:"display,omitempty"`
	PreviousDisplay *DisplayInfo `json:"previous_display,omitempty"`
	Desktop         *DesktopInfo `json:"desktop,omitempty"`
	PreviousDesktop *DesktopInfo `json:"previous_desktop,omitempty"`
	Cursor          *geom.Point  `json:"cursor,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// feedBuffer is the per-subscriber channel capacity. A subscriber that
// falls behind misses events.
const feedBuffer = 64

type feed struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool

	watchMu sync.Mutex
	watched map[*window.Window]func()
}

func (f *feed) subscribe() <-chan Event {
	ch := make(chan Event, feedBuffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

func (f *feed) unsubscribe(ch <-chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == ch {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (f *feed) active() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs) > 0
}

func (f *feed) publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		close(sub)
	}
	f.subs = nil
	f.closed = true
}

// Subscribe returns a channel receiving every workspace event. Delivery
// never blocks the processing loop: a full channel drops events. The
// channel is closed by Unsubscribe or Dispose.
func (w *Workspace) Subscribe() <-chan Event {
	return w.feed.subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (w *Workspace) Unsubscribe(ch <-chan Event) {
	w.feed.unsubscribe(ch)
}

func (w *Workspace) publish(build func() Event) {
	if !w.feed.active() {
		return
	}
	ev := build()
	ev.Time = time.Now()
	w.feed.publish(ev)
}

func (w *Workspace) publishWindow(kind Kind, win *window.Window) {
	w.publish(func() Event {
		return Event{Kind: kind, Window: DescribeWindow(win)}
	})
}

func (w *Workspace) publishFocus(c FocusChange) {
	w.publish(func() Event {
		return Event{Kind: KindFocusChanged, Window: DescribeWindow(c.New), PreviousWindow: DescribeWindow(c.Old)}
	})
}

func (w *Workspace) publishCursor(c CursorChange) {
	w.publish(func() Event {
		pt := c.New
		return Event{Kind: KindCursorMoved, Cursor: &pt}
	})
}

func (w *Workspace) publishError(err error) {
	w.publish(func() Event {
		return Event{Kind: KindError, Error: err.Error()}
	})
}

// watchWindow forwards the change events of a visible window to the feed.
func (w *Workspace) watchWindow(win *window.Window) {
	w.feed.watchMu.Lock()
	defer w.feed.watchMu.Unlock()
	if w.feed.watched == nil {
		w.feed.watched = make(map[*window.Window]func())
	}
	if _, ok := w.feed.watched[win]; ok {
		return
	}
	ev := win.Events()
	stops := []func(){
		ev.PositionChanged.Subscribe(func(c window.PositionChange) { w.publishWindow(KindWindowMoved, c.Window) }),
		ev.StateChanged.Subscribe(func(c window.StateChange) { w.publishWindow(KindWindowStateChanged, c.Window) }),
		ev.TopmostChanged.Subscribe(func(c window.TopmostChange) { w.publishWindow(KindWindowTopmostChanged, c.Window) }),
		ev.TitleChanged.Subscribe(func(c window.TitleChange) { w.publishWindow(KindWindowTitleChanged, c.Window) }),
	}
	w.feed.watched[win] = func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func (w *Workspace) unwatchWindow(win *window.Window) {
	w.feed.watchMu.Lock()
	stop, ok := w.feed.watched[win]
	delete(w.feed.watched, win)
	w.feed.watchMu.Unlock()
	if ok {
		stop()
	}
}

// watchManagers forwards display and desktop events to the feed and
// returns the function that stops forwarding.
func (w *Workspace) watchManagers(dm *display.Manager, vdm vdesktop.Manager) func() {
	dev, vev := dm.Events(), vdm.Events()
	stops := []func(){
		dev.Added.Subscribe(func(d *display.Display) {
			w.publish(func() Event {
				return Event{Kind: KindDisplayAdded, Display: DescribeDisplay(d, dm.PrimaryDisplay())}
			})
		}),
		dev.Removed.Subscribe(func(d *display.Display) {
			w.publish(func() Event {
				return Event{Kind: KindDisplayRemoved, Display: DescribeDisplay(d, nil)}
			})
		}),
		dev.PrimaryChanged.Subscribe(func(c display.PrimaryChange) {
			w.publish(func() Event {
				return Event{
					Kind:            KindPrimaryDisplayChanged,
					Display:         DescribeDisplay(c.New, c.New),
					PreviousDisplay: DescribeDisplay(c.Old, c.New),
				}
			})
		}),
		vev.DesktopAdded.Subscribe(func(d vdesktop.Desktop) {
			w.publish(func() Event {
				return Event{Kind: KindDesktopAdded, Desktop: DescribeDesktop(d)}
			})
		}),
		vev.DesktopRemoved.Subscribe(func(d vdesktop.Desktop) {
			w.publish(func() Event {
				return Event{Kind: KindDesktopRemoved, Desktop: DescribeDesktop(d)}
			})
		}),
		vev.CurrentDesktopChanged.Subscribe(func(c vdesktop.CurrentChange) {
			w.publish(func() Event {
				return Event{
					Kind:            KindCurrentDesktopChanged,
					Desktop:         DescribeDesktop(c.New),
					PreviousDesktop: DescribeDesktop(c.Old),
				}
			})
		}),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}
