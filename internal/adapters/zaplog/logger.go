// Package zaplog adapts zap.Logger to the ports.Logger facade used by the
// application services.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/renewly/reminder-service/internal/domain/ports"
)

// Adapter wraps a zap.Logger behind the Logger port
type Adapter struct {
	logger *zap.Logger
}

// New creates a new zap-backed logger adapter
func New(logger *zap.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// Info logs an info message
func (a *Adapter) Info(msg string, fields ...ports.Field) {
	a.logger.Info(msg, convertFields(fields)...)
}

// Error logs an error message
func (a *Adapter) Error(msg string, fields ...ports.Field) {
	a.logger.Error(msg, convertFields(fields)...)
}

// Warn logs a warning message
func (a *Adapter) Warn(msg string, fields ...ports.Field) {
	a.logger.Warn(msg, convertFields(fields)...)
}

// Debug logs a debug message
func (a *Adapter) Debug(msg string, fields ...ports.Field) {
	a.logger.Debug(msg, convertFields(fields)...)
}

func convertFields(fields []ports.Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = zap.Any(f.Key, f.Value)
	}
	return zapFields
}
