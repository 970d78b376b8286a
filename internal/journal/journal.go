// Package journal keeps an append-only JSONL record of the resource deltas
// reported to the installer.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/filelock"
)

const (
	// FileName is the journal file inside the installwatch directory.
	FileName   = "journal.jsonl"
	lockName   = ".journal.lock"
	fileMode   = 0o600
	maxEntries = 10000 // truncate oldest entries when the journal exceeds this size
)

// Journal actions.
const (
	ActionRegister = "register"
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionWrite    = "writeback"
	ActionDelete   = "writeback-remove"
)

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	URL       string    `json:"url,omitempty"`
	Type      string    `json:"type,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Append writes entries to the journal in dir. Concurrent writers, in this
// process or another, are serialized by a lock file.
func Append(dir string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	unlock, err := filelock.Lock(filepath.Join(dir, lockName))
	if err != nil {
		return fmt.Errorf("locking journal: %w", err)
	}
	defer func() { _ = unlock() }()

	var buf bytes.Buffer
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling journal entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode) //nolint:gosec // journal path from trusted dir
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}

	// Best effort; a long journal is not an error.
	_ = truncate(path)
	return nil
}

// Read returns the newest limit entries, oldest first. A limit of zero or
// less returns everything. A missing journal is empty.
func Read(dir string, limit int) ([]Entry, error) {
	lines, err := readLines(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // trusted path
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) //nolint:mnd // generous line limit for property-heavy entries
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// truncate rewrites the journal keeping only the newest maxEntries lines.
func truncate(path string) error {
	lines, err := readLines(path)
	if err != nil || len(lines) <= maxEntries {
		return err
	}
	lines = lines[len(lines)-maxEntries:]

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(buf.String()), fileMode)
}
