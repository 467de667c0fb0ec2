package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LogLevel represents the verbosity of logging
type LogLevel string

const (
	// LevelDebug enables all logs, including every protocol line
	LevelDebug LogLevel = "debug"
	// LevelInfo enables info, warning, and error logs (default)
	LevelInfo LogLevel = "info"
	// LevelWarn enables only warning and error logs
	LevelWarn LogLevel = "warn"
	// LevelError enables only error logs
	LevelError LogLevel = "error"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// global logger instance
var (
	globalLogger *zap.SugaredLogger
	globalFile   *os.File
	globalMutex  sync.RWMutex
)

// Config holds logger configuration.
//
// Standard output belongs to the protocol, so the logger only ever writes to
// stderr or to File.
type Config struct {
	Level  LogLevel
	File   string // empty means stderr
	Format string // "auto", "console" or "json"
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatAuto,
	}
}

// ParseLevel validates a level name.
func ParseLevel(s string) (LogLevel, error) {
	switch l := LogLevel(s); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var file *os.File
	sink := zapcore.AddSync(os.Stderr)
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		sink = zapcore.AddSync(f)
		isTerminal = false
	}

	encoder, err := buildEncoder(cfg.Format, isTerminal)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return err
	}
	logger := newLogger(encoder, sink, mapLevelToZapLevel(cfg.Level))

	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	if globalFile != nil {
		globalFile.Close()
	}
	globalLogger = logger.Sugar()
	globalFile = file
	return nil
}

// mapLevelToZapLevel maps our log level to zap level
func mapLevelToZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildEncoder picks the console encoder for terminals and JSON otherwise,
// unless the format is forced.
func buildEncoder(format string, isTerminal bool) (zapcore.Encoder, error) {
	switch format {
	case "", FormatAuto:
		if isTerminal {
			return zapcore.NewConsoleEncoder(buildEncoderConfig(true)), nil
		}
		return zapcore.NewJSONEncoder(buildEncoderConfig(false)), nil
	case FormatConsole:
		return zapcore.NewConsoleEncoder(buildEncoderConfig(isTerminal)), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(buildEncoderConfig(false)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func buildEncoderConfig(color bool) zapcore.EncoderConfig {
	levelEncoder := zapcore.CapitalLevelEncoder
	if color {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newLogger(encoder zapcore.Encoder, sink zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the global logger
// If not initialized, it initializes with default config
func Get() *zap.SugaredLogger {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger
	}

	cfg := DefaultConfig()
	encoder, _ := buildEncoder(cfg.Format, term.IsTerminal(int(os.Stderr.Fd())))
	loggerToSet := newLogger(encoder, zapcore.AddSync(os.Stderr), mapLevelToZapLevel(cfg.Level)).Sugar()

	globalMutex.Lock()
	defer globalMutex.Unlock()

	// Check again in case another goroutine initialized while we were creating
	if globalLogger != nil {
		return globalLogger
	}

	globalLogger = loggerToSet
	return globalLogger
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	Get().Debugw(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	Get().Infow(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	Get().Warnw(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	Get().Errorw(msg, args...)
}

// With returns a logger with additional fields
func With(args ...interface{}) *zap.SugaredLogger {
	return Get().With(args...)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Reset resets the global logger (mainly for testing)
func Reset() {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	if globalFile != nil {
		globalFile.Close()
	}
	globalLogger = nil
	globalFile = nil
}
