//go:build !windows && !linux

package platform

import "github.com/bryanchriswhite/winman/internal/native"

func Open() (native.System, error) {
	return nil, ErrUnsupported
}
