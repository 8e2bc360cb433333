package logger

import (
	"os"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package-level logger to be used across packages after Init.
var S *zap.SugaredLogger

// Logger is the structured-object logging contract injected into the app
// layers. The methods log obj as a single field named key.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Init initializes a zap SugaredLogger using settings from config and returns
// a Logger bound to it.
func Init(cfg *config.Config) (Logger, error) {
	var level zapcore.Level
	switch cfg.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	sugar := logger.Sugar()
	S = sugar
	return &zapLogger{s: sugar}, nil
}

// Close flushes any buffered loggers.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

// zapLogger adapts a SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) InfoObj(msg, key string, obj interface{}) {
	l.s.Desugar().Info(msg, zap.Any(key, obj))
}

func (l *zapLogger) DebugObj(msg, key string, obj interface{}) {
	l.s.Desugar().Debug(msg, zap.Any(key, obj))
}

func (l *zapLogger) WarnObj(msg, key string, obj interface{}) {
	l.s.Desugar().Warn(msg, zap.Any(key, obj))
}

func (l *zapLogger) ErrorObj(msg, key string, obj interface{}) {
	l.s.Desugar().Error(msg, zap.Any(key, obj))
}

// NopLogger satisfies Logger and discards everything. Useful for tests and as
// a default when callers pass nil.
type NopLogger struct{}

func (NopLogger) InfoObj(msg, key string, obj interface{})  {}
func (NopLogger) DebugObj(msg, key string, obj interface{}) {}
func (NopLogger) WarnObj(msg, key string, obj interface{})  {}
func (NopLogger) ErrorObj(msg, key string, obj interface{}) {}

// Minimal object logging helpers -------------------------------------------------
// These are tiny wrappers that log the given object as a structured field named
// `key` and do not attempt to parse arbitrary kv arrays.
func InfoObj(msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	S.Desugar().Info(msg, zap.Any(key, obj))
}

func DebugObj(msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	S.Desugar().Debug(msg, zap.Any(key, obj))
}

func WarnObj(msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	S.Desugar().Warn(msg, zap.Any(key, obj))
}

func ErrorObj(msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	S.Desugar().Error(msg, zap.Any(key, obj))
}
