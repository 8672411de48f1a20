package log

import "context"

// NopLogger discards every log event. It is the safe default wherever a
// Logger dependency is optional.
type NopLogger struct{}

// NewNop returns a Logger that discards all events.
func NewNop() Logger {
	return &NopLogger{}
}

// Log implements Logger.
func (*NopLogger) Log(context.Context, Level, string, ...Field) {}

// With implements Logger.
func (n *NopLogger) With(...Field) Logger { return n }

// Enabled implements Logger; no level is ever enabled.
func (*NopLogger) Enabled(Level) bool { return false }

// Sync implements Logger.
func (*NopLogger) Sync(context.Context) error { return nil }
