package vdesktop

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Select picks the COM layout for an OS version from the dispatch table.
// Rules are tried in order; ok is false when none matches, in which case
// the caller falls back to the Dummy manager.
func Select(rules []config.BuildRule, v native.OSVersion) (layout string, ok bool) {
	if v.Build < config.MinVirtualDesktopBuild {
		return "", false
	}
	for _, r := range rules {
		if v.Build >= r.MinBuild && v.UBR >= r.MinUBR {
			return r.Layout, true
		}
	}
	return "", false
}

// uuidFromGUIDBytes decodes the 16-byte in-memory form of a Windows GUID,
// whose first three fields are little-endian.
func uuidFromGUIDBytes(b []byte) (uuid.UUID, bool) {
	if len(b) != 16 {
		return uuid.Nil, false
	}
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(u[8:], b[8:16])
	return u, true
}

// guidBytes is the inverse of uuidFromGUIDBytes.
func guidBytes(u uuid.UUID) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(b[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(b[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(b[8:], u[8:])
	return b
}
