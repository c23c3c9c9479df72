package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var global atomic.Pointer[Logger]

func init() {
	// Start with warnings and errors to stderr, until configuration is parsed
	SetupGlobalLogger(WarningLevel, os.Stderr)
}

// SetupGlobalLogger replaces package level loggers.
// Safe to call while other goroutines are logging.
func SetupGlobalLogger(level int, writers ...io.Writer) {
	global.Store(New(level, writers...))
}

func Debug() *log.Logger {
	return global.Load().Debug()
}

func Info() *log.Logger {
	return global.Load().Info()
}

func Warning() *log.Logger {
	return global.Load().Warning()
}

func Error() *log.Logger {
	return global.Load().Error()
}
