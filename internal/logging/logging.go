// Package logging wraps zap for loadelf's structured diagnostics: one
// global logger, a debug/production preset split, and a handful of
// field helpers for the hex addresses and sizes this loader talks about
// constantly.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. Init replaces it; until Init is called it
// is a no-op logger so packages that log before CLI setup never panic.
var L = zap.NewNop()

// Init installs the global logger. debug selects zap's development
// preset (console encoding, debug level, caller/stacktrace on warn+);
// otherwise the production preset (JSON, info level) is used. run is a
// correlation id attached to every subsequent log line.
func Init(debug bool, run string) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger = logger.With(zap.String("run", run))
	L = logger
	return logger, nil
}

// New builds a logger without installing it globally, for tests that want
// an isolated instance.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return cfg.Build()
}

// NewNop returns a logger that discards everything, for tests that don't
// care about log output.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// Addr formats a virtual address field the way every loader log line
// wants it: 0x-prefixed, fixed width.
func Addr(key string, v uintptr) zap.Field {
	return zap.String(key, fmt.Sprintf("0x%016x", v))
}

// Hex formats an arbitrary numeric field in hex, for tags and flags
// rather than addresses (no fixed width).
func Hex(key string, v uint64) zap.Field {
	return zap.String(key, fmt.Sprintf("0x%x", v))
}

// Size formats a byte count field.
func Size(key string, n uint64) zap.Field {
	return zap.Uint64(key, n)
}

// Path formats a filesystem path field, for library and executable paths.
func Path(key, p string) zap.Field {
	return zap.String(key, p)
}
