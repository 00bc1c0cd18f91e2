package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// unitBytes maps a lower-cased unit to its multiplier. SI and IEC units are
// both accepted; no unit means bytes.
var unitBytes = map[string]int64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// ParseSize reads a byte count or a byte rate such as "100", "1.5GiB" or
// "5MB/s". Blank means zero.
func ParseSize(s string) (int64, error) {
	raw := s

	s = strings.TrimSuffix(strings.TrimSpace(s), "/s")
	if s == "" {
		return 0, nil
	}

	split := strings.LastIndexFunc(s, func(r rune) bool {
		return (r >= '0' && r <= '9') || r == '.'
	}) + 1
	num, unit := strings.TrimSpace(s[:split]), strings.TrimSpace(s[split:])

	mult, ok := unitBytes[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", raw, unit)
	}

	if num == "" {
		return 0, fmt.Errorf("invalid size %q: missing number", raw)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", raw)
	}

	bytes := n * float64(mult)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", raw)
	}

	return int64(bytes), nil
}
