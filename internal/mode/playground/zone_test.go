package playground

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeFieldZoneID(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		expected string
	}{
		{name: "basic", field: "email", expected: "field:email"},
		{name: "with colon", field: "user:name", expected: "field:user:name"},
		{name: "with hyphen", field: "first-name", expected: "field:first-name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, MakeFieldZoneID(tt.field))
		})
	}
}

func TestParseFieldZoneID_RoundTrip(t *testing.T) {
	for _, field := range []string{"email", "user:name", "a"} {
		got, ok := parseFieldZoneID(makeFieldZoneID(field))
		require.True(t, ok)
		require.Equal(t, field, got)
	}
}

func TestParseFieldZoneID_Invalid(t *testing.T) {
	for _, id := range []string{"", "field:", submitZoneID, "col:1:issue:bd-1"} {
		_, ok := parseFieldZoneID(id)
		require.False(t, ok, "expected %q to be rejected", id)
	}
}
