package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStringToLevelParsesKnownLevels(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, StringToLevel("warn"))
	assert.Equal(t, zerolog.DebugLevel, StringToLevel("not-a-level"))
}

func TestLogLevelsListsAllSeverities(t *testing.T) {
	assert.Equal(t, []string{"trace", "debug", "info", "warn", "error", "fatal"}, LogLevels())
}

func TestEscapeAndUnescapeHomeRoundTrip(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory available in this environment")
	}

	full := filepath.Join(home, "mirror/catalog.db")
	escaped := EscapeHome(full)
	assert.Equal(t, "~/mirror/catalog.db", escaped)
	assert.Equal(t, full, UnescapeHome(escaped))
}

func TestEscapeHomeLeavesUnrelatedPathsAlone(t *testing.T) {
	assert.Equal(t, "/etc/elsewhere", EscapeHome("/etc/elsewhere"))
	assert.Equal(t, "/etc/elsewhere", UnescapeHome("/etc/elsewhere"))
}

func TestVersionIncludesPrefix(t *testing.T) {
	assert.Regexp(t, `^v\d+\.\d+\.\d+`, Version())
}
