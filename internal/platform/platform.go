// Package platform opens the native binding for the running OS.
package platform

import (
	"errors"

	"github.com/bryanchriswhite/winman/internal/native"
)

// ErrUnsupported is returned by Open on systems without a binding.
var ErrUnsupported = errors.New("platform: no window system binding for this OS")

// Closer is implemented by bindings holding a connection.
type Closer interface {
	Close()
}

// Close releases sys if it holds a connection.
func Close(sys native.System) {
	if c, ok := sys.(Closer); ok {
		c.Close()
	}
}
