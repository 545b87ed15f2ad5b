package stringutils

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandStringBytesMask(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		seed     int64
		expected string
	}{
		{
			name:     "6-char string from seed 1234",
			n:        6,
			seed:     1234,
			expected: "ts9ng0",
		},
		{
			name:     "6-char string from seed 42",
			n:        6,
			seed:     42,
			expected: "pb6mvj",
		},
		{
			name:     "8-char string from seed 1234",
			n:        8,
			seed:     1234,
			expected: "9jts9ng0",
		},
		{
			name:     "empty string with n = 0",
			n:        0,
			seed:     999,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, RandStringBytesMask(tt.n, rand.NewSource(tt.seed)))
		})
	}
}

func TestGetRunID(t *testing.T) {
	id := GetRunID()
	require.Len(t, id, 6)
	for _, ch := range id {
		require.True(t, strings.ContainsRune(shaLetters, ch), "invalid character %q in run ID", ch)
	}
}
