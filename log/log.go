// Package log provides the subsystem logging backend shared by every
// package in this module. Each package declares its own package-level
// Logger variable and a UseLogger setter (mirroring the teacher's
// peerLog/srvrLog convention); this package owns the single btclog.Backend
// they are all built from.
package log

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// backend is the shared btclog backend every subsystem logger is derived
// from. It defaults to stdout until InitLogRotator redirects it to a
// rotating file.
var backend = btclog.NewBackend(os.Stdout)

// disabled is handed out by Disabled as the initial value of every
// package-level logger, so nil dereference never happens even if a
// package never has UseLogger called.
var disabled = btclog.Disabled

// NewSubsystem returns a fresh logger tagged with subsystem, defaulting to
// Info level. Callers normally pass this straight to their package's
// UseLogger.
func NewSubsystem(tag string) btclog.Logger {
	l := backend.Logger(tag)
	l.SetLevel(btclog.LevelInfo)
	return l
}

// Disabled returns a no-op logger, used as the zero value for package-level
// logger variables before UseLogger is called.
func Disabled() btclog.Logger {
	return disabled
}

// SetLevel adjusts the level of a previously created subsystem logger.
func SetLevel(l btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	l.SetLevel(lvl)
}

// InitLogRotator redirects the shared backend to a rotating log file at
// logFile, additionally writing to w (pass os.Stdout for console output,
// or nil for file-only). maxSizeKB is the per-file size threshold before
// rolling; maxRolls bounds how many rotated files are kept.
func InitLogRotator(logFile string, maxSizeKB int64, maxRolls int, w io.Writer) error {
	r, err := rotator.New(logFile, maxSizeKB, false, maxRolls)
	if err != nil {
		return err
	}

	var dest io.Writer = r
	if w != nil {
		dest = io.MultiWriter(w, r)
	}

	backend = btclog.NewBackend(dest)
	return nil
}
