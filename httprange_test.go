package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		size       int64
		start, end int64
		err        error
	}{
		{"open ended", "bytes=100-", 1000, 100, 999, nil},
		{"closed", "bytes=0-99", 1000, 0, 99, nil},
		{"end clamped", "bytes=900-5000", 1000, 900, 999, nil},
		{"suffix", "bytes=-200", 1000, 800, 999, nil},
		{"suffix larger than size", "bytes=-5000", 1000, 0, 999, nil},
		{"case and spaces", " Bytes= 10 - 19 ", 1000, 10, 19, nil},
		{"start past end", "bytes=1000-", 1000, 0, 0, errRangeNotSatisfiable},
		{"unknown size", "bytes=0-", 0, 0, 0, errRangeNotSatisfiable},
		{"wrong unit", "items=0-1", 1000, 0, 0, errInvalidRange},
		{"multi range", "bytes=0-1,5-6", 1000, 0, 0, errInvalidRange},
		{"no dash", "bytes=5", 1000, 0, 0, errInvalidRange},
		{"reversed", "bytes=50-10", 1000, 0, 0, errInvalidRange},
		{"empty suffix", "bytes=-", 1000, 0, 0, errInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, errInvalidRange},
		{"negative start", "bytes=-1-5", 1000, 0, 0, errInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseByteRange(tt.header, tt.size)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
