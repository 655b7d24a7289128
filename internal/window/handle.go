package window

import (
	"sync"

	"github.com/bryanchriswhite/winman/internal/native"
)

// Handle is the lightweight record kept for every window the workspace has
// seen. The full Window is created on first need.
type Handle struct {
	hwnd native.Handle

	mu     sync.Mutex
	window *Window
}

// NewHandle wraps h.
func NewHandle(h native.Handle) *Handle {
	return &Handle{hwnd: h}
}

// OS returns the OS handle.
func (h *Handle) OS() native.Handle {
	return h.hwnd
}

// Window returns the promoted Window, or nil.
func (h *Handle) Window() *Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window
}

// EnsureWindow creates the Window if it does not exist yet. At most one
// Window is ever created per Handle.
func (h *Handle) EnsureWindow(host Host) (*Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.window != nil {
		return h.window, nil
	}
	w, err := New(host, h.hwnd)
	if err != nil {
		return nil, err
	}
	h.window = w
	return w, nil
}
