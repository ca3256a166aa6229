// Package common holds small utilities shared by the login and service
// binaries: versioning, log level parsing, and home-directory path
// escaping for config files.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var commit string

// Version returns the current version string.
func Version() string {
	clen := 0
	if len(commit) > 7 {
		clen = 8
	}
	return fmt.Sprintf("v%s %s", version, commit[:clen])
}

// StringToLevel converts a string to a zerolog.Level, defaulting to debug
// on a parse failure.
func StringToLevel(input string) zerolog.Level {
	level, err := zerolog.ParseLevel(input)
	if err != nil {
		log.Error().Err(err).Msg("Could not parse log level, defaulting to \"debug\".")
		return zerolog.DebugLevel
	}
	return level
}

// LogLevels returns the available logging levels, in increasing order of
// severity.
func LogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "fatal"}
}

// EscapeHome replaces the user's absolute home directory with "~" so
// config files stay portable across machines with different home paths.
func EscapeHome(path string) string {
	homedir, _ := os.UserHomeDir()
	if homedir != "" && strings.HasPrefix(path, homedir) {
		return strings.Replace(path, homedir, "~", 1)
	}
	return path
}

// UnescapeHome replaces a leading "~" in path with the absolute home
// directory.
func UnescapeHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homedir, _ := os.UserHomeDir()
		return filepath.Join(homedir, path[2:])
	}
	return path
}
