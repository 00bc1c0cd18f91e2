package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"backend": {
		"gateway_url", "api_id", "api_hash", "database_dir", "files_dir", "use_test_dc",
		"system_language", "device_model", "requests_per_second", "event_buffer",
		"call_timeout", "connect_timeout",
	},
	"download": {"priority", "synchronous", "poll_interval", "poll_attempts"},
	"stream": {
		"stall_retries", "stall_interval", "file_wait_attempts", "file_wait_interval", "watch_files",
	},
	"catalog": {"database", "chat_title", "history_page_size", "chat_scan_limit", "lookup_workers"},
	"serve":   {"listen", "bandwidth_limit", "shutdown_timeout"},
	"logging": {"log_level", "log_file", "log_format"},
}

// knownSections is the sorted list of section names for suggestions.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for name := range knownKeys {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}()

// sectionForKey maps each key to the section it belongs in, so a key placed
// at the top level can point to its home.
var sectionForKey = func() map[string]string {
	m := make(map[string]string)
	for section, keys := range knownKeys {
		for _, k := range keys {
			m[k] = section
		}
	}

	return m
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	switch len(key) {
	case 0:
		return nil
	case 1:
		name := key[0]
		if section, ok := sectionForKey[name]; ok {
			return fmt.Errorf("unknown config key %q: it belongs in the [%s] section", name, section)
		}

		if suggestion := closestMatch(name, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config key %q: did you mean [%s]?", name, suggestion)
		}

		return fmt.Errorf("unknown config key %q", name)
	default:
		section, name := key[0], key[1]

		keys, ok := knownKeys[section]
		if !ok {
			if suggestion := closestMatch(section, knownSections); suggestion != "" {
				return fmt.Errorf("unknown config section [%s]: did you mean [%s]?", section, suggestion)
			}

			return fmt.Errorf("unknown config section [%s]", section)
		}

		if suggestion := closestMatch(name, keys); suggestion != "" {
			return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", name, section, suggestion)
		}

		return fmt.Errorf("unknown config key %q in [%s]", strings.Join(key[1:], "."), section)
	}
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
// Ties go to the key listed first.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using two rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
