package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below debug and carries per-range insert logs.
const TraceLevel = zapcore.DebugLevel - 1

// New builds the process logger. level is one of trace, debug, info, warn, error.
func New(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if encoding != "" {
		cfg.Encoding = encoding
	}
	switch level {
	case "trace":
		cfg.Level = zap.NewAtomicLevelAt(TraceLevel)
		cfg.Development = true
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = encodeLevel
	return cfg.Build()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

// Trace logs msg at TraceLevel.
func Trace(logger *zap.Logger, msg string, fields ...zap.Field) {
	if ce := logger.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}
