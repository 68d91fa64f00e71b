// Package obslog provides the default structured-logging backend for the
// tap.Logger interface, built on go.uber.org/zap's SugaredLogger so core
// packages can log key/value pairs without depending on zap directly.
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger adapts a zap.SugaredLogger to tap.Logger.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a production zap.Logger at level and wraps it.
func New(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error { return l.s.Sync() }
