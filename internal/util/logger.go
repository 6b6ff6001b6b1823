package util

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LoggerOptions configures the process-wide logger.
type LoggerOptions struct {
	Env     string
	Service string
	// Level overrides the env default ("debug" in development, "info" in
	// production) when set.
	Level string
}

// InitLogger builds the process-wide logger. Production emits JSON with
// ISO8601 timestamps; other envs use the colored console encoder.
func InitLogger(opts LoggerOptions) error {
	var cfg zap.Config
	if opts.Env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if opts.Level != "" {
		level, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = level
	}

	cfg.InitialFields = map[string]interface{}{
		"service": opts.Service,
		"env":     opts.Env,
	}

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = built
	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger, falling back to a development logger
// for code paths (tests, tools) that never called InitLogger.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
