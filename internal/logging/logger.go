package logging

import (
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultBufferSize is the number of entries a logger keeps for late readers.
const DefaultBufferSize = 1000

// Logger writes leveled entries with string fields. A nil *Logger is valid
// and discards everything, so components can take an optional logger.
type Logger struct {
	buffer      *LogBuffer
	output      *log.Logger
	minLevel    Level
	baseContext map[string]string
	hub         *LogHub
}

// NewLogger returns a logger writing to stderr.
func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

// NewLoggerWithOutput returns a logger writing formatted lines to output.
func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		buffer:   buffer,
		output:   log.New(output, "", log.LstdFlags),
		minLevel: normalizeLevel(minLevel),
		hub:      NewLogHub(),
	}
}

// Discard returns a logger that drops all output but still buffers entries.
func Discard() *Logger {
	return NewLoggerWithOutput(nil, LevelDebug, io.Discard)
}

// Buffer returns the logger's ring buffer.
func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// Subscribe streams entries logged from now on.
func (l *Logger) Subscribe() (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return nil, func() {}
	}
	return l.hub.Subscribe(0)
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		buffer:      l.buffer,
		output:      l.output,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		hub:         l.hub,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

// Info logs at info level.
func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

// Warn logs at warning level.
func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

// Error logs at error level.
func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

// Enabled reports whether entries at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

// Close ends all subscriptions.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.hub.Close()
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.baseContext, fields),
	}
	if l.buffer != nil {
		l.buffer.Add(entry)
	}
	l.hub.Broadcast(entry)
	if l.output != nil {
		l.output.Print(formatEntry(entry))
	}
}

// ParseLevel parses a level name; "warn" is accepted for warning.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarning:
		return 2 //nolint:mnd // rank order
	case LevelError:
		return 3 //nolint:mnd // rank order
	default:
		return 1
	}
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	maps.Copy(combined, base)
	maps.Copy(combined, extra)
	return combined
}

// Err is shorthand for a fields map carrying an error.
func Err(err error) map[string]string {
	if err == nil {
		return nil
	}
	return map[string]string{"error": err.Error()}
}

func formatEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(string(entry.Level))
	b.WriteString(" msg=")
	b.WriteString(strconv.Quote(entry.Message))

	for _, key := range slices.Sorted(maps.Keys(entry.Context)) {
		fmt.Fprintf(&b, " %s=%s", key, strconv.Quote(entry.Context[key]))
	}
	return b.String()
}
