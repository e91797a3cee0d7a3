// Package logger owns the process-wide zap logger.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger. It is a no-op logger until Init succeeds.
var Log = zap.NewNop()

// Options configures Init.
type Options struct {
	Level string
	// Format is "json" or "console". Empty selects json when logging to a
	// file and console otherwise.
	Format  string
	File    string
	Service string
}

// Init builds Log from opts. Unknown levels fall back to info.
func Init(opts Options) error {
	var config zap.Config

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "console"
		if opts.File != "" {
			format = "json"
		}
	}

	switch format {
	case "json":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "time"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		config = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File != "" {
		config.OutputPaths = []string{opts.File, "stdout"}
	}
	config.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))

	l, err := config.Build()
	if err != nil {
		return err
	}
	if opts.Service != "" {
		l = l.With(zap.String("service", opts.Service))
	}
	Log = l
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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

// Sync flushes buffered entries.
func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}
