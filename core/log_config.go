package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DebugEnv names the environment variable controlling the global log level.
const DebugEnv = "DEBUG_HNSW"

// init initializes the logging configuration based on the DEBUG_HNSW environment variable.
func init() {
	zerolog.SetGlobalLevel(LevelFromEnv())
}

// LevelFromEnv maps DEBUG_HNSW to a zerolog level.
// "off" or "0" disables logging, "full" enables debug output, anything else means info.
func LevelFromEnv() zerolog.Level {
	debugMode := strings.TrimSpace(strings.ToLower(os.Getenv(DebugEnv)))
	switch debugMode {
	case "off", "0":
		return zerolog.Disabled
	case "full":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a configured level name into a zerolog level. An empty
// name falls back to LevelFromEnv.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return LevelFromEnv(), nil
	}
	if name == "off" {
		return zerolog.Disabled, nil
	}
	return zerolog.ParseLevel(name)
}
