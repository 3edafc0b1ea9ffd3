// Package logging provides the application's component logger: printf-style
// levelled output with a component tag, optional file sink, and secret
// redaction applied to every line.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level represents the severity of a log message
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

var (
	defaultLogger *componentLogger
	defaultOnce   sync.Once
)

type componentLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	file      *os.File
	level     Level
	component string
}

func root() *componentLogger {
	defaultOnce.Do(func() {
		defaultLogger = &componentLogger{
			mu:    &sync.Mutex{},
			out:   os.Stdout,
			level: INFO,
		}
		if path := os.Getenv("SKALD_DEBUG_LOG"); path != "" {
			if file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defaultLogger.file = file
				defaultLogger.level = DEBUG
			}
		}
	})
	return defaultLogger
}

// SetLevel sets the minimum level of the process-wide logger.
func SetLevel(level Level) {
	l := root()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// NewComponentLogger returns the default application logger scoped to a
// component.
func NewComponentLogger(component string) Logger {
	base := root()
	return &componentLogger{
		mu:        base.mu,
		out:       base.out,
		file:      base.file,
		level:     base.level,
		component: base.component + component,
	}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "SKALD"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), levelString(level), component, file, line, message)
	logLine = Redact(logLine)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, logLine)
	if l.file != nil {
		fmt.Fprint(l.file, logLine)
	}
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func levelString(level Level) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
