package logger

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	ServiceName string
	// Console writes human readable lines instead of JSON.
	Console bool
	Debug   bool
	// DiskPath is attached to every record when set.
	DiskPath string

	// ExportOTEL tees the records to LoggerProvider, or to the global
	// OpenTelemetry logger provider when it is nil.
	ExportOTEL     bool
	LoggerProvider log.LoggerProvider

	// Cores receive every record next to stderr.
	Cores []zapcore.Core
}

// NewLogger builds the logger of a disk image tool. Records go to stderr and,
// depending on the config, to OpenTelemetry and the extra cores.
func NewLogger(c LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if c.Debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := EncoderConfig()

	var encoder zapcore.Encoder
	if c.Console {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	stderr := zapcore.Lock(os.Stderr)
	cores := []zapcore.Core{zapcore.NewCore(encoder, stderr, level)}

	if c.ExportOTEL {
		provider := c.LoggerProvider
		if provider == nil {
			provider = global.GetLoggerProvider()
		}

		cores = append(cores, otelzap.NewCore(c.ServiceName, otelzap.WithLoggerProvider(provider)))
	}

	cores = append(cores, c.Cores...)

	fields := []zap.Field{
		zap.String("service", c.ServiceName),
		zap.Int("pid", os.Getpid()),
	}

	if c.DiskPath != "" {
		fields = append(fields, WithDiskPath(c.DiskPath))
	}

	opts := []zap.Option{
		zap.ErrorOutput(stderr),
		zap.Fields(fields...),
	}

	if c.Console {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		MessageKey:     "message",
		LevelKey:       "level",
		NameKey:        "logger",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}
}
