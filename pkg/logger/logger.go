package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"heliodata/pkg/config"
)

// Logger defines the interface for logging operations
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
}

// zerologLogger carries its fields in the zerolog context
type zerologLogger struct {
	z zerolog.Logger
}

// New creates a Logger from configuration. The console gets pretty output
// at cfg.Level. When cfg.File is set, JSON events at cfg.FileLevel
// (default debug) are appended to it as well.
func New(cfg *config.LoggingConfig) (Logger, error) {
	consoleLvl, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	console := levelWriter{w: consoleWriter(os.Stderr), min: consoleLvl}
	if cfg.File == "" {
		return newLogger(console, consoleLvl), nil
	}

	fileLvl := zerolog.DebugLevel
	if cfg.FileLevel != "" {
		if fileLvl, err = parseLogLevel(cfg.FileLevel); err != nil {
			return nil, fmt.Errorf("invalid file log level: %w", err)
		}
	}
	file, err := openLogFile(cfg.File)
	if err != nil {
		return nil, err
	}

	lowest := consoleLvl
	if fileLvl < lowest {
		lowest = fileLvl
	}
	return newLogger(zerolog.MultiLevelWriter(console, levelWriter{w: file, min: fileLvl}), lowest), nil
}

// NewWithWriter creates a Logger writing JSON events to w
func NewWithWriter(level string, w io.Writer) (Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return newLogger(w, lvl), nil
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return &zerologLogger{z: zerolog.Nop()}
}

func newLogger(w io.Writer, lvl zerolog.Level) *zerologLogger {
	zerolog.TimeFieldFormat = time.RFC3339
	return &zerologLogger{
		z: zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "heliodata").Logger(),
	}
}

// levelWriter drops events below min so each sink keeps its own level
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (lw levelWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			lvl, _ := i.(string)
			switch lvl {
			case "debug":
				return "\033[37mDEBG\033[0m"
			case "info":
				return "\033[32mINFO\033[0m"
			case "warn":
				return "\033[33mWARN\033[0m"
			case "error":
				return "\033[31mERRO\033[0m"
			}
			return strings.ToUpper(lvl)
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[36m%s\033[0m:", i)
		},
	}
}

// openLogFile opens path for appending, creating parent directories
func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
}

func (l *zerologLogger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.z.Error().Msg(msg) }

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return &zerologLogger{z: l.z.With().Fields(fields).Logger()}
}

// WithError adds the error message under "error"
func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zerologLogger{z: l.z.With().Str("error", err.Error()).Logger()}
}

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.z.Debug().Fields(fields).Msg(msg)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.z.Info().Fields(fields).Msg(msg)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.z.Warn().Fields(fields).Msg(msg)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.z.Error().Fields(fields).Msg(msg)
}

// Process-wide logger for the CLI layer. Library packages take a Logger
// explicitly and never read this.
var globalLogger Logger

// Initialize sets up the global logger
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

// GetLogger returns the global logger, creating an info-level console one
// on first use
func GetLogger() Logger {
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}
