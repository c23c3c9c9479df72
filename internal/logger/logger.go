package logger

import (
	"io"
	"log"
	"strings"
)

const (
	DebugLevel = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	logLevelsCount // actually not a real log level, but simplifies some code
)

type Logger struct {
	loggers [logLevelsCount]*log.Logger
}

func logLevelPrefix(level int) string {
	switch level {
	case DebugLevel:
		return "[DBG] "
	case InfoLevel:
		return "[INF] "
	case WarningLevel:
		return "[WRN] "
	case ErrorLevel:
		return "[ERR] "
	default:
		return "[???] "
	}
}

// ParseLevel converts level name to its value. Unknown names fall back to InfoLevel.
func ParseLevel(name string) int {
	switch strings.ToUpper(name) {
	case "DEBUG", "DBG":
		return DebugLevel
	case "WARNING", "WARN", "WRN":
		return WarningLevel
	case "ERROR", "ERR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// New creates level loggers writing to all writers.
// Levels below `level` are discarded.
func New(level int, writers ...io.Writer) *Logger {
	var out io.Writer

	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	lgr := Logger{}
	for i := 0; i < logLevelsCount; i++ {
		if i >= level {
			lgr.loggers[i] = log.New(out, logLevelPrefix(i), log.Ldate|log.Ltime|log.Lmicroseconds)
		} else {
			lgr.loggers[i] = log.New(io.Discard, "", 0)
		}
	}
	return &lgr
}

func (lgr *Logger) Debug() *log.Logger {
	return lgr.loggers[DebugLevel]
}

func (lgr *Logger) Info() *log.Logger {
	return lgr.loggers[InfoLevel]
}

func (lgr *Logger) Warning() *log.Logger {
	return lgr.loggers[WarningLevel]
}

func (lgr *Logger) Error() *log.Logger {
	return lgr.loggers[ErrorLevel]
}
