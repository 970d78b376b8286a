package logging

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("folder added", map[string]string{"path": "/apps/install"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entries[0].Level)
	}
	if entries[0].Context["path"] != "/apps/install" {
		t.Fatalf("expected path context, got %v", entries[0].Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Debug("debug", nil)
	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 || entries[0].Level != LevelWarning {
		t.Fatalf("expected only the warning entry, got %v", entries)
	}
}

func TestLoggerWithMergesFields(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelDebug, &out).With(map[string]string{"component": "engine"})

	logger.Error("scan failed", Err(errors.New("boom")))

	line := out.String()
	for _, want := range []string{`level=error`, `msg="scan failed"`, `component="engine"`, `error="boom"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Index(line, "component=") > strings.Index(line, "error=") {
		t.Fatalf("expected fields sorted by key, got %q", line)
	}
}

func TestLoggerSubscribe(t *testing.T) {
	logger := Discard()
	ch, cancel := logger.Subscribe()
	defer cancel()

	logger.Info("hello", nil)

	select {
	case got := <-ch:
		if got.Message != "hello" {
			t.Fatalf("expected hello, got %q", got.Message)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for log entry")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatalf("nil logger should not be enabled")
	}
	if logger.With(map[string]string{"a": "b"}) != nil {
		t.Fatalf("With on nil logger should stay nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" INFO ", LevelInfo, true},
		{"warn", LevelWarning, true},
		{"warning", LevelWarning, true},
		{"error", LevelError, true},
		{"trace", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLogBufferCircular(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "first"})
	buffer.Add(LogEntry{Message: "second"})
	buffer.Add(LogEntry{Message: "third"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Fatalf("unexpected order: %v", entries)
	}
}

func TestLogHubClose(t *testing.T) {
	hub := NewLogHub()
	ch, _ := hub.Subscribe(1)
	hub.Close()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed")
	}
	late, _ := hub.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel for late subscriber")
	}
}
