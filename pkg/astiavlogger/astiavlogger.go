// Package astiavlogger routes libav's own log output into a go-belt logger.
package astiavlogger

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	logger "github.com/facebookincubator/go-belt/tool/logger/types"
)

// Callback returns an astiav log callback that forwards every libav log
// line to the given logger, annotated with the libav class it came from.
//
// libav may log from any of its internal threads; the callback serializes
// them.
func Callback(l logger.Logger) astiav.LogCallback {
	var locker sync.Mutex
	return func(c astiav.Classer, level astiav.LogLevel, format, msg string) {
		locker.Lock()
		defer locker.Unlock()
		var class string
		if c != nil {
			if cl := c.Class(); cl != nil {
				class = " - class: " + cl.String()
			}
		}
		l.Logf(
			LogLevelFromAstiav(level),
			"%s%s",
			strings.TrimSpace(msg), class,
		)
	}
}

// LogLevelToAstiav maps a go-belt log level to the libav one. go-belt's
// Debug is deliberately mapped to libav's Verbose: libav's Debug is
// per-packet noise, which go-belt calls Trace.
func LogLevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelUndefined:
		return astiav.LogLevelQuiet
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelDebug:
		return astiav.LogLevelVerbose
	case logger.LevelTrace:
		return astiav.LogLevelDebug
	}
	return astiav.LogLevelWarning
}

// LogLevelFromAstiav is the inverse of LogLevelToAstiav.
func LogLevelFromAstiav(level astiav.LogLevel) logger.Level {
	switch level {
	case astiav.LogLevelQuiet:
		return logger.LevelUndefined
	case astiav.LogLevelPanic:
		return logger.LevelPanic
	case astiav.LogLevelFatal:
		return logger.LevelFatal
	case astiav.LogLevelError:
		return logger.LevelError
	case astiav.LogLevelWarning:
		return logger.LevelWarning
	case astiav.LogLevelInfo:
		return logger.LevelInfo
	case astiav.LogLevelVerbose:
		return logger.LevelDebug
	case astiav.LogLevelDebug:
		return logger.LevelTrace
	}
	return logger.LevelWarning
}
