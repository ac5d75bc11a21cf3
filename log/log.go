package log

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Logger wraps a zap.Logger so that named child loggers keep our type.
type Logger struct {
	*zap.Logger
}

var (
	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip
	AddStacktrace = zap.AddStacktrace
)

var (
	std   = New(os.Stderr, InfoLevel, AddCallerSkip(1))
	stdMu sync.RWMutex
)

// New creates a logger writing JSON lines to w.
func New(w io.Writer, level Level, opts ...Option) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), level)
	return &Logger{zap.New(core, opts...)}
}

// DevLogger creates a human readable console logger.
func DevLogger(w io.Writer, level Level, opts ...Option) *Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return &Logger{zap.New(core, opts...)}
}

func ParseLevel(text string) (Level, error) {
	return zapcore.ParseLevel(text)
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

func (l *Logger) WithOptions(opts ...Option) *Logger {
	return &Logger{l.Logger.WithOptions(opts...)}
}

// Default returns the process wide logger.
func Default() *Logger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

// ResetDefault replaces the process wide logger. Not safe to call while
// other goroutines log through the package level functions.
func ResetDefault(l *Logger) {
	stdMu.Lock()
	defer stdMu.Unlock()
	std = l
}

func Debug(msg string, fields ...Field) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { Default().Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { Default().Fatal(msg, fields...) }

func Sync() error {
	return Default().Sync()
}

// field helpers
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int32    = zap.Int32
	Int64    = zap.Int64
	Uint32   = zap.Uint32
	Uint64   = zap.Uint64
	Float32  = zap.Float32
	Float64  = zap.Float64
	Bool     = zap.Bool
	Any      = zap.Any
	Duration = zap.Duration
	Time     = zap.Time
)

func ErrorField(err error) Field {
	return zap.Error(err)
}

// Float64p logs an optional float, nil is rendered as null.
func Float64p(key string, val *float64) Field {
	return zap.Float64p(key, val)
}

func Since(key string, start time.Time) Field {
	return zap.Duration(key, time.Since(start))
}
