// Package logext provides a custom [log.Logger] for debug logging.
//
// Logging is controlled by the PERSISTEDCACHE_DEBUG environment variable, set to
// "true" to enable debug logging.
package logext

import (
	"io"
	"log"
	"os"
)

// DebugEnvVar is the name of the environment variable that controls debug logging.
const DebugEnvVar = "PERSISTEDCACHE_DEBUG"

// Enabled reports whether debug logging is switched on.
func Enabled() bool {
	return os.Getenv(DebugEnvVar) == "true"
}

// NewLogger returns a new logger.
// If the PERSISTEDCACHE_DEBUG environment variable is set, it logs messages to the provided output.
// Otherwise, it discards all log messages.
func NewLogger(output io.Writer) *log.Logger {
	if !Enabled() {
		output = io.Discard
	}
	return log.New(output, "[persistedcache] ", log.LstdFlags|log.Lshortfile|log.Lmicroseconds)
}

// Default returns a debug logger writing to stderr.
func Default() *log.Logger {
	return NewLogger(os.Stderr)
}
