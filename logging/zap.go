package logging

import (
	"go.uber.org/zap"
)

// ZapAdapter wraps a *zap.SugaredLogger to implement the Logger interface.
// Production deployments that already run zap can hand their logger to the
// engine without an extra translation layer.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapAdapter creates a Logger from *zap.Logger.
func NewZapAdapter(logger *zap.Logger) Logger {
	return &ZapAdapter{sugar: logger.Sugar()}
}

// NewProductionZapLogger builds a zap production logger wrapped as a Logger.
func NewProductionZapLogger() (Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapAdapter(logger), nil
}

// Debug logs a debug message with alternating key/value args.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info logs an informational message with alternating key/value args.
func (z *ZapAdapter) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn logs a warning message with alternating key/value args.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error logs an error message with alternating key/value args.
func (z *ZapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
