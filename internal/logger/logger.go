package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	output io.Writer = os.Stderr
)

func init() {
	// Logs go to stderr so that command output on stdout stays machine readable
	Logger = newLogger(output)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = Logger
}

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger with the specified level and output
func Init(level string, pretty bool) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	var w io.Writer = output
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = newLogger(w)
	log.Logger = Logger
}

// SetOutput redirects the global logger, used by tests to silence or capture logs
func SetOutput(w io.Writer) {
	output = w
	Logger = newLogger(w)
	log.Logger = Logger
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithField adds a custom field to the logger
func WithField(key string, value interface{}) *zerolog.Logger {
	l := Logger.With().Interface(key, value).Logger()
	return &l
}

// Debug logs a debug message
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Info logs an info message
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Warn logs a warning message
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Error logs an error message
func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Fatal logs a fatal message and exits
func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
