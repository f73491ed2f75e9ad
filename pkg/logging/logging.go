// Package logging defines the minimal leveled logger the cache engine
// emits through. Adapters for concrete logging stacks live in the
// subpackages; a nil/Nop logger disables logging entirely.
package logging

// Fields is a structured field map attached to a log line.
type Fields map[string]any

// Logger is a tiny leveled logger.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger drops everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
