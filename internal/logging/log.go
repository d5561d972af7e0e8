package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production logger at level writing to stdout.
// FTSBENCH_DEBUG=true switches to the development encoder.
func NewLogger(level string) *zap.SugaredLogger {
	return build(level, "stdout")
}

// NewStderrLogger is NewLogger writing to stderr, leaving stdout to command
// output.
func NewStderrLogger(level string) *zap.SugaredLogger {
	return build(level, "stderr")
}

func build(level, output string) *zap.SugaredLogger {
	var config zap.Config
	debugMode, ok := os.LookupEnv("FTSBENCH_DEBUG")
	if ok && debugMode == "true" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{output}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("ftsbench").Sugar()
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a new info logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger("info")
}
