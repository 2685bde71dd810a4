// Package logging provides the structured logger used across the
// server, client, and IPC packages.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/agilira/lethe"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger with the level and output
// configuration this project cares about.
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel mirrors zap's level type so callers outside this package
// never need to import zapcore directly.
type LogLevel = zapcore.Level

const (
	LevelDebug LogLevel = zapcore.DebugLevel
	LevelInfo  LogLevel = zapcore.InfoLevel
	LevelWarn  LogLevel = zapcore.WarnLevel
	LevelError LogLevel = zapcore.ErrorLevel
)

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Output, when set, receives log lines instead of stderr. Used by
	// tests and by RotatingFile below.
	Output io.Writer
}

// NewLogger creates a new Logger. A nil Config yields a stderr logger at
// info level, matching the server binary's default before flags are
// parsed.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = &Config{Level: LevelInfo}
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	sink := zapcore.Lock(zapcore.AddSync(output))

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), sink, config.Level)
	return &Logger{sugar: zap.New(core).Sugar()}
}

// RotatingFile opens path as a size-rotated log destination backed by
// lethe, suitable for the server's -log-file flag. The caller owns the
// returned io.WriteCloser and should close it on shutdown.
func RotatingFile(path string) (io.WriteCloser, error) {
	return lethe.New(path, 64, 5)
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// With returns a Logger annotated with the given structured key-value
// pairs, the way request-handling code tags a line with its own
// correlation fields (client_id, request_id, bucket) without formatting
// them into the message text.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

func Debugf(format string, args ...any) { Default().Debugf(format, args...) }
func Infof(format string, args ...any)  { Default().Infof(format, args...) }
func Warnf(format string, args ...any)  { Default().Warnf(format, args...) }
func Errorf(format string, args ...any) { Default().Errorf(format, args...) }
