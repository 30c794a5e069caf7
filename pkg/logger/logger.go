// Package logger is the process-wide logger. It keeps a printf-style API
// on top of a zerolog.Logger so callers can also attach structured fields.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	INFO = iota
	DEBUG
)

var (
	mu      sync.RWMutex
	log     zerolog.Logger
	ready   bool
	logFile *os.File
)

// InitLogger writes to stdout and appends to filename. An empty filename
// means stdout only.
func InitLogger(filename string, level int) error {
	var out io.Writer = consoleWriter(os.Stdout)

	var f *os.File
	if filename != "" {
		var err error
		f, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", filename, err)
		}
		out = zerolog.MultiLevelWriter(out, f)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	log = zerolog.New(out).Level(toZerolog(level)).With().Timestamp().Logger()
	ready = true
	return nil
}

// Init sets up console-only logging at INFO.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(consoleWriter(os.Stdout)).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	ready = true
}

// SetOutput redirects logging to w, mainly for tests.
func SetOutput(w io.Writer, level int) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(w).Level(toZerolog(level)).With().Timestamp().Logger()
	ready = true
}

// Close releases the log file, if any. Later messages go to stdout only, at
// the same level.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	logFile.Close()
	logFile = nil
	log = zerolog.New(consoleWriter(os.Stdout)).Level(log.GetLevel()).With().Timestamp().Logger()
}

// Get returns the underlying logger for structured use.
func Get() *zerolog.Logger {
	mu.RLock()
	if ready {
		l := log
		mu.RUnlock()
		return &l
	}
	mu.RUnlock()
	Init()
	return Get()
}

// ParseLevel maps "debug" to DEBUG and anything else to INFO.
func ParseLevel(s string) int {
	if s == "debug" || s == "DEBUG" {
		return DEBUG
	}
	return INFO
}

func Info(format string, v ...interface{}) {
	Get().Info().Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Debug(format string, v ...interface{}) {
	Get().Debug().Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	Debug(format, v...)
}

func Error(format string, v ...interface{}) {
	Get().Error().Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	Get().Warn().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
}

func toZerolog(level int) zerolog.Level {
	if level == DEBUG {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
