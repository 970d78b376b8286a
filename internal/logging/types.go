// Package logging provides the leveled, field-based logger used by the
// installwatch engine and CLI. Recent entries are kept in a ring buffer and
// fanned out to live subscribers such as the dashboard.
package logging

import "time"

// Level is a log severity.
type Level string

// Supported levels, lowest first.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one emitted log record.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
