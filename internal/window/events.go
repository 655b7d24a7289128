package window

import (
	"github.com/bryanchriswhite/winman/internal/event"
	"github.com/bryanchriswhite/winman/internal/eventloop"
	"github.com/bryanchriswhite/winman/internal/geom"
	"github.com/bryanchriswhite/winman/internal/native"
)

// PositionChange carries the new and previous window rectangle.
type PositionChange struct {
	Window *Window
	New    geom.Rect
	Old    geom.Rect
}

// StateChange carries the new and previous window state.
type StateChange struct {
	Window *Window
	New    State
	Old    State
}

// TopmostChange carries the new topmost flag.
type TopmostChange struct {
	Window  *Window
	Topmost bool
}

// TitleChange carries the new and previous title.
type TitleChange struct {
	Window *Window
	New    string
	Old    string
}

// Events are the per-window listener registries. They are cleared when the
// window is destroyed.
type Events struct {
	Added     event.Registry[*Window]
	Removed   event.Registry[*Window]
	Destroyed event.Registry[*Window]

	GotFocus  event.Registry[*Window]
	LostFocus event.Registry[*Window]

	PositionChangeStart event.Registry[PositionChange]
	PositionChangeEnd   event.Registry[PositionChange]
	PositionChanged     event.Registry[PositionChange]
	StateChanged        event.Registry[StateChange]
	TopmostChanged      event.Registry[TopmostChange]
	TitleChanged        event.Registry[TitleChange]
}

func (e *Events) clear() {
	e.Added.Clear()
	e.Removed.Clear()
	e.Destroyed.Clear()
	e.GotFocus.Clear()
	e.LostFocus.Clear()
	e.PositionChangeStart.Clear()
	e.PositionChangeEnd.Clear()
	e.PositionChanged.Clear()
	e.StateChanged.Clear()
	e.TopmostChanged.Clear()
	e.TitleChanged.Clear()
}

func (w *Window) updatePositionAndNotify(pos geom.Rect) {
	w.mu.Lock()
	old := w.position
	w.position = pos
	w.mu.Unlock()

	if old != pos {
		w.events.PositionChanged.Fire(PositionChange{Window: w, New: pos, Old: old})
	}
}

func (w *Window) updateStateAndNotify(state State) {
	w.mu.Lock()
	old := w.state
	w.state = state
	w.mu.Unlock()

	if old != state {
		w.events.StateChanged.Fire(StateChange{Window: w, New: state, Old: old})
	}
}

func (w *Window) updateTopmostAndNotify(topmost bool) {
	w.mu.Lock()
	old := w.topmost
	w.topmost = topmost
	w.mu.Unlock()

	if old != topmost {
		w.events.TopmostChanged.Fire(TopmostChange{Window: w, Topmost: topmost})
	}
}

// readFailed decides what a failed OS call means: nil once the window is
// gone, the error otherwise. IsAlive marks a vanished window dead.
func (w *Window) readFailed(err error) error {
	if !w.IsAlive() {
		return nil
	}
	return err
}

// UpdateConfiguration re-reads state, position and topmost in one pass and
// fires a change event for each field that differs from the cache.
func (w *Window) UpdateConfiguration() error {
	cmd, err := w.sys.Placement(w.handle)
	if err != nil {
		return w.readFailed(err)
	}
	pos, err := w.sys.Rect(w.handle)
	if err != nil {
		return w.readFailed(err)
	}
	exStyle, err := w.sys.ExStyle(w.handle)
	if err != nil {
		return w.readFailed(err)
	}

	state := stateFromShowCmd(cmd)
	if state == Restored {
		tolerance := w.host.MaximizeTolerance()
		for _, bounds := range w.host.DisplayBounds() {
			if geom.CloseMatch(bounds, pos, tolerance) {
				state = Maximized
				break
			}
		}
	}

	w.updatePositionAndNotify(pos)
	w.updateStateAndNotify(state)
	w.updateTopmostAndNotify(exStyle&native.WS_EX_TOPMOST != 0)
	return nil
}

// CheckChanges is the periodic recheck of a visible window.
func (w *Window) CheckChanges() error {
	return w.UpdateConfiguration()
}

// OnAdded is called when the window enters the visible set.
func (w *Window) OnAdded() error {
	if err := w.UpdateConfiguration(); err != nil {
		return err
	}
	w.events.Added.Fire(w)
	return nil
}

// OnRemoved is called when the window leaves the visible set.
func (w *Window) OnRemoved() {
	w.events.Removed.Fire(w)
}

// OnDestroyed marks the window dead, fires Destroyed and drops every
// listener.
func (w *Window) OnDestroyed() {
	w.markDead()
	defer w.events.clear()
	w.events.Destroyed.Fire(w)
}

func (w *Window) swapInitialPosition() (newPos, oldPos geom.Rect) {
	w.mu.Lock()
	defer w.mu.Unlock()
	oldPos = w.initialPosition
	newPos = w.position
	w.initialPosition = w.position
	return newPos, oldPos
}

// OnMoveSizeStart records the position an interactive move starts from.
func (w *Window) OnMoveSizeStart() {
	newPos, oldPos := w.swapInitialPosition()
	w.events.PositionChangeStart.Fire(PositionChange{Window: w, New: newPos, Old: oldPos})
}

// OnMoveSizeEnd refreshes the window and reports the move against the
// position it started from.
func (w *Window) OnMoveSizeEnd() error {
	if err := w.UpdateConfiguration(); err != nil {
		return err
	}
	newPos, oldPos := w.swapInitialPosition()
	w.events.PositionChangeEnd.Fire(PositionChange{Window: w, New: newPos, Old: oldPos})
	return nil
}

func (w *Window) setFocused(focused bool) {
	w.mu.Lock()
	w.focused = focused
	w.mu.Unlock()
}

func (w *Window) OnForeground() {
	w.setFocused(true)
	w.events.GotFocus.Fire(w)
}

func (w *Window) OnBackground() {
	w.setFocused(false)
	w.events.LostFocus.Fire(w)
}

// OnPositionChanged refreshes the window if it is still top-level visible.
func (w *Window) OnPositionChanged() error {
	if !w.IsTopLevelVisible() {
		return nil
	}
	return w.UpdateConfiguration()
}

// OnTitleChange re-reads the title. It may block on a hung window and is
// meant to run on the background loop.
func (w *Window) OnTitleChange() {
	title, _ := w.fetchTitle(false)

	w.mu.Lock()
	old := w.title
	w.title = title
	w.mu.Unlock()

	if old != title {
		w.events.TitleChanged.Fire(TitleChange{Window: w, New: title, Old: old})
	}
}

// RefreshTitle re-reads the title on the background loop.
func (w *Window) RefreshTitle() *eventloop.Future[string] {
	return eventloop.Go(w.host.Background(), func() (string, error) {
		w.OnTitleChange()
		return w.Title(), nil
	})
}
