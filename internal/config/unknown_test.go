package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevelBelongsInSection(t *testing.T) {
	path := writeTestConfig(t, "log_level = \"debug\"\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[logging]")
}

func TestLoad_UnknownKey_TypoInSection(t *testing.T) {
	path := writeTestConfig(t, "[stream]\nstall_retires = 4\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), `did you mean "stall_retries"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, "[donwload]\npriority = 1\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean [download]")
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[catalog]\ncompletely_unrelated_key = true\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"listen", "listen", 0},
		{"priorty", "priority", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "listen", closestMatch("lisen", knownKeys["serve"]))
	assert.Empty(t, closestMatch("zzzzzzzzzz", knownKeys["serve"]))
}
