//go:build windows

package vdesktop

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/windows/registry"
)

const virtualDesktopsKey = `SOFTWARE\Microsoft\Windows\CurrentVersion\Explorer\VirtualDesktops`

// registryCurrentDesktopID reads the shell's record of the current desktop.
// It is much cheaper than asking the shell over COM.
func registryCurrentDesktopID() uuid.UUID {
	k, err := registry.OpenKey(registry.CURRENT_USER, virtualDesktopsKey, registry.QUERY_VALUE)
	if err != nil {
		return uuid.Nil
	}
	defer k.Close()

	b, _, err := k.GetBinaryValue("CurrentVirtualDesktop")
	if err != nil {
		return uuid.Nil
	}
	id, ok := uuidFromGUIDBytes(b)
	if !ok {
		return uuid.Nil
	}
	return id
}

// registryDesktopName returns the user-assigned name of a desktop, or ""
// when it was never renamed.
func registryDesktopName(id uuid.UUID) (string, error) {
	path := virtualDesktopsKey + `\Desktops\{` + strings.ToUpper(id.String()) + `}`
	k, err := registry.OpenKey(registry.CURRENT_USER, path, registry.QUERY_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return "", nil
		}
		return "", err
	}
	defer k.Close()

	name, _, err := k.GetStringValue("Name")
	if err == registry.ErrNotExist {
		return "", nil
	}
	return name, err
}
