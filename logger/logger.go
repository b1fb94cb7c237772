// Package logger defines the structured logging surface used throughout the
// payment core. Components log through the Logger interface; the zap-backed
// implementation is the default, and NoopLogger serves tests and embedders
// that bring their own logging.
package logger

// Logger is a leveled, structured logger. Fields carry the event's context
// (payment id, currency, address) as key/value pairs.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
