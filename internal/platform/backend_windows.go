//go:build windows

package platform

import "github.com/bryanchriswhite/winman/internal/native"

// Open returns the Win32 binding.
func Open() (native.System, error) {
	sys, err := native.New()
	if err != nil {
		return nil, err
	}
	return sys, nil
}
