// Package logging builds the zap logger used by the service binaries and
// adapts it to core.Logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"whalewatcher/internal/core"
)

// New creates a logger. level is debug|info|warn|error (default info) and
// format is json|console (default json).
func New(level, format, service string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// ParseLevel maps a level name onto zap, falling back to info.
func ParseLevel(level string) zapcore.Level {
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

// Adapter exposes a zap logger through core.Logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = Adapter{}

// NewAdapter wraps logger. A nil logger discards everything.
func NewAdapter(logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Adapter{sugar: logger.Sugar()}
}

func (a Adapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }
func (a Adapter) Info(msg string, args ...any)  { a.sugar.Infow(msg, args...) }
func (a Adapter) Warn(msg string, args ...any)  { a.sugar.Warnw(msg, args...) }
func (a Adapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }
