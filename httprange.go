package main

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errInvalidRange        = errors.New("invalid range")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// parseByteRange parses a single-range "bytes=" header against a resource
// of size bytes and returns the inclusive [start, end] it selects. Suffix
// ranges ("bytes=-500") and open ranges ("bytes=100-") are supported;
// multi-range requests are rejected.
func parseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bytes=") {
		return 0, 0, errInvalidRange
	}

	spec := strings.TrimSpace(value[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, errInvalidRange
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, errInvalidRange
	}

	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		return suffixRange(endStr, size)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errInvalidRange
	}

	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		return start, size - 1, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, errInvalidRange
	}

	return start, min(end, size-1), nil
}

func suffixRange(endStr string, size int64) (int64, int64, error) {
	suffix, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || suffix <= 0 {
		return 0, 0, errInvalidRange
	}

	suffix = min(suffix, size)

	return size - suffix, size - 1, nil
}
