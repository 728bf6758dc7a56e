package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the zap backend behind component loggers.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json | console
	Output string `mapstructure:"output" yaml:"output"` // stderr | stdout | file path
}

var defaultLogger atomic.Pointer[zap.Logger]

// Default returns the process-wide zap logger, a no-op logger until Install is called.
func Default() *zap.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Install builds a zap logger from cfg and makes it the process default.
func Install(cfg Config) (*zap.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultLogger.Store(logger)
	return logger, nil
}

// New builds a zap logger without touching the process default.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console", "text":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	output := strings.TrimSpace(cfg.Output)
	if output == "" {
		output = "stderr"
	}
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true

	return zc.Build()
}

type zapPrintfLogger struct {
	sugar *zap.SugaredLogger
}

// FromZap adapts a zap logger to the printf-style Logger contract.
func FromZap(logger *zap.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	if component != "" {
		logger = logger.With(zap.String("component", component))
	}
	return &zapPrintfLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapPrintfLogger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *zapPrintfLogger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *zapPrintfLogger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *zapPrintfLogger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }
