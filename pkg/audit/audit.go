// Package audit appends operational events to a JSON-lines log under the
// data root. The log is append-only; rotation is left to external
// tooling.
package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log writes events to a single file, serialized by a mutex.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates the log file (and its directory) if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ragerror.NewStorage("audit", "open", "failed to create log directory", err).
			WithDetail("path", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ragerror.NewStorage("audit", "open", "failed to open audit log", err).
			WithDetail("path", path)
	}
	return &Log{path: path, file: file}, nil
}

// Record appends one event. The timestamp is stamped here.
func (l *Log) Record(action string, details map[string]any) error {
	event := Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return ragerror.NewStorage("audit", "record", "failed to encode event", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return ragerror.NewStorage("audit", "record", "failed to append event", err).
			WithDetail("action", action)
	}
	return nil
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Read returns up to limit most recent events (all when limit <= 0).
// Intended for admin inspection, not hot paths.
func Read(path string, limit int) ([]Event, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ragerror.NewStorage("audit", "read", "failed to read audit log", err).
			WithDetail("path", path)
	}

	var events []Event
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var e Event
		if err := decoder.Decode(&e); err != nil {
			break
		}
		events = append(events, e)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
