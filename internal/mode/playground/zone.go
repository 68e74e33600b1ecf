package playground

import (
	"strings"
)

// Zone ID format: field:{name} for an input row, or "submit" for the submit
// button. Field names may contain ':'; everything after the prefix is the name.

const (
	fieldZonePrefix = "field:"
	submitZoneID    = "submit"
)

// makeFieldZoneID creates the zone ID of a field row.
func makeFieldZoneID(name string) string {
	return fieldZonePrefix + name
}

// MakeFieldZoneID is an exported version of makeFieldZoneID for use in tests.
func MakeFieldZoneID(name string) string {
	return makeFieldZoneID(name)
}

// parseFieldZoneID extracts the field name from a zone ID.
// Returns ("", false) for IDs that do not name a field.
//
//nolint:unused // Used in zone_test.go for round-trip verification
func parseFieldZoneID(zoneID string) (name string, ok bool) {
	name, ok = strings.CutPrefix(zoneID, fieldZonePrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
