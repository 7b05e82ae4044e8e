// Package logging builds the zap loggers used across the pipeline.
// Components never construct loggers themselves; the CLI builds one at
// startup and passes named children down explicitly.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Verbose lowers the level to debug.
// Output goes to stderr so report text on stdout stays machine-parseable.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Nop returns a no-op logger for tests and library callers that pass nil.
func Nop() *zap.Logger { return zap.NewNop() }

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
