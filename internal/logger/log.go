package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger with a small field API.
type Logger struct {
	logger *zap.Logger
}

// Field holds a key-value pair to be written to the log.
type Field struct {
	Key   string
	Value any
}

// NewField returns Field with given key and value.
func NewField(key string, value any) Field { return Field{key, value} }

// Level is the minimum severity written.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"

	messageKey = "message"
)

// ParseLevel accepts debug/info/warn/error in any case; anything else is info.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return l
	}
	return InfoLevel
}

func (level Level) zapLevel() zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Options configures NewLogger.
type Options struct {
	level      Level
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	console    *bool
}

// WithLevel sets the minimum level. Default info.
func WithLevel(level Level) Options { return Options{level: level} }

// WithFile also writes JSON lines to path, rotated by size.
func WithFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Options {
	return Options{file: path, maxSizeMB: maxSizeMB, maxBackups: maxBackups, maxAgeDays: maxAgeDays}
}

// WithConsole toggles the stdout sink. Default on.
func WithConsole(on bool) Options { return Options{console: &on} }

// NewLogger builds a logger writing to stdout and, optionally, a rotated file.
func NewLogger(opts ...Options) (*Logger, error) {
	var (
		level   = InfoLevel
		console = true
		file    *lumberjack.Logger
	)
	for _, o := range opts {
		if o.level != "" {
			level = o.level
		}
		if o.console != nil {
			console = *o.console
		}
		if o.file != "" {
			file = &lumberjack.Logger{
				Filename:   o.file,
				MaxSize:    o.maxSizeMB,
				MaxBackups: o.maxBackups,
				MaxAge:     o.maxAgeDays,
				Compress:   true,
			}
		}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.MessageKey = messageKey
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var sinks []zapcore.WriteSyncer
	if console {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	if file != nil {
		sinks = append(sinks, zapcore.AddSync(file))
	}
	if len(sinks) == 0 {
		return nil, errors.New("logger: no output configured")
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.NewMultiWriteSyncer(sinks...),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)
	return &Logger{logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
}

// Nop returns a logger that writes nothing.
func Nop() *Logger { return &Logger{logger: zap.NewNop()} }

// GetZap returns the zap.Logger for packages that take one directly.
// The caller skip added for this wrapper is removed.
func (l *Logger) GetZap() *zap.Logger { return l.logger.WithOptions(zap.AddCallerSkip(-1)) }

// Named returns a child zap logger scoped to a component.
func (l *Logger) Named(name string) *zap.Logger { return l.GetZap().Named(name) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.logger.Sync() }

func (l *Logger) Debug(message string, fields ...Field) { l.logger.Debug(message, convertFields(fields)...) }
func (l *Logger) Info(message string, fields ...Field)  { l.logger.Info(message, convertFields(fields)...) }
func (l *Logger) Warn(message string, fields ...Field)  { l.logger.Warn(message, convertFields(fields)...) }

// Error logs err at error level, with its pkg/errors stack trace when it has one.
func (l *Logger) Error(err error, fields ...Field) {
	if err == nil {
		return
	}
	zf := convertFields(fields)
	if ce := l.logger.Check(zapcore.ErrorLevel, err.Error()); ce != nil {
		type stackTracer interface{ StackTrace() errors.StackTrace }
		if st, ok := err.(stackTracer); ok {
			ce.Stack = strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
		}
		ce.Write(zf...)
	}
}

// WithFields returns a child logger with additional fields.
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{logger: l.logger.With(convertFields(fields)...)}
}

func convertFields(fields []Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
