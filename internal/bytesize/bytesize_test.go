package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		input    string
		expected uint64
		ok       bool
	}{
		{"10MB", 10 << 20, true},
		{"10MiB", 10 << 20, true},
		{"1.5GB", uint64(1.5 * float64(1<<30)), true},
		{"1.5", 0, false},
		{"2.0", 2, true},
		{"1024", 1024, true},
		{"1KB", 1024, true},
		{"1kib", 1024, true},
		{" 512 MiB ", 512 << 20, true},
		{"3TiB", 3 << 40, true},
		{"600B", 600, true},
		{"B", 0, false},
		{"", 0, false},
		{"ten MB", 0, false},
		{"-1MB", 0, false},
		{"NaNMB", 0, false},
		{"0.5KB", 512, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := Parse(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseRejectsOverflow(t *testing.T) {
	_, ok := Parse("99999999999999999TiB")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "512.000B", Format(512))
	require.Equal(t, "1.500KB", Format(1536))
	require.Equal(t, "10.000GB", Format(10<<30))
}
