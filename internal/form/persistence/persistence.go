// Package persistence provides JSONL logging of form events and replay of a
// log back into per-field state.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zjrosen/formflow/internal/form"
	"github.com/zjrosen/formflow/internal/log"
)

// EventsFile is the filename of the form events log inside a directory.
const EventsFile = "form.jsonl"

// maxLineSize is the buffer size for reading JSONL lines.
const maxLineSize = 1024 * 1024

// currentVersion is the current schema version for persisted events.
const currentVersion = 1

// Record is the serializable form of form.Event. Error payloads are stored as
// their message so that logs stay readable after the process is gone.
type Record struct {
	Type       form.EventType `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Field      string         `json:"field,omitempty"`
	AttemptID  string         `json:"attempt_id,omitempty"`
	State      *StateRecord   `json:"state,omitempty"`
	Errors     map[string]any `json:"errors,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Submitting bool           `json:"submitting"`
}

// StateRecord is the serializable form of form.FieldState.
type StateRecord struct {
	Value    any         `json:"value"`
	Status   form.Status `json:"status"`
	Error    any         `json:"error,omitempty"`
	Pristine bool        `json:"pristine"`
	Focused  bool        `json:"focused"`
}

// PersistedEvent wraps a record with persistence metadata. This is the
// structure written to the JSONL file.
type PersistedEvent struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Event     Record    `json:"event"`
}

// NewRecord converts a form event.
func NewRecord(e form.Event) Record {
	r := Record{
		Type:       e.Type,
		Timestamp:  e.Timestamp,
		Field:      e.Field,
		AttemptID:  e.AttemptID,
		Errors:     normalizeMap(e.Errors),
		Data:       normalizeMap(e.Data),
		Submitting: e.Submitting,
	}
	if e.State != nil {
		r.State = &StateRecord{
			Value:    normalize(e.State.Value),
			Status:   e.State.Status,
			Error:    normalize(e.State.Error),
			Pristine: e.State.Pristine,
			Focused:  e.State.Focused,
		}
	}
	if e.SubmitError != nil {
		r.Error = e.SubmitError.Error()
	}
	return r
}

// Redacted replaces the stored value of a secret field.
const Redacted = "[redacted]"

// redact masks the values of the named fields.
func (r *Record) redact(secrets map[string]bool) {
	if len(secrets) == 0 {
		return
	}
	if r.State != nil && secrets[r.Field] && r.State.Value != nil {
		r.State.Value = Redacted
	}
	for name := range r.Data {
		if secrets[name] {
			r.Data[name] = Redacted
		}
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

// EventLogger persists form events to a JSONL file. Events are written
// synchronously; encoding failures are counted and logged, never returned.
type EventLogger struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	filePath string
	secrets  map[string]bool

	eventsWritten int64
	errors        int64
	lastError     error
}

// NewEventLogger opens (or creates) the events file in dir for appending.
// Values of the secret fields are written as Redacted.
func NewEventLogger(dir string, secrets ...string) (*EventLogger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating events directory: %w", err)
	}
	filePath := filepath.Join(dir, EventsFile)

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // caller-chosen path
	if err != nil {
		return nil, fmt.Errorf("opening form events file: %w", err)
	}

	l := &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		filePath: filePath,
		secrets:  make(map[string]bool, len(secrets)),
	}
	for _, name := range secrets {
		l.secrets[name] = true
	}
	return l, nil
}

// HandleEvent persists one event.
func (l *EventLogger) HandleEvent(event form.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	record := NewRecord(event)
	record.redact(l.secrets)
	persisted := PersistedEvent{
		Version:   currentVersion,
		Timestamp: time.Now(),
		Event:     record,
	}
	if err := l.encoder.Encode(persisted); err != nil {
		l.errors++
		l.lastError = err
		log.Warn(log.CatStore, "failed to persist form event", "type", event.Type, "error", err)
		return
	}
	l.eventsWritten++
}

// Follow persists every event from ch until it is closed.
func (l *EventLogger) Follow(ch <-chan form.Event) {
	for e := range ch {
		l.HandleEvent(e)
	}
}

// Close flushes and closes the underlying file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("syncing form events file: %w", err)
		}
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("closing form events file: %w", err)
		}
		l.file = nil
	}
	return nil
}

// Stats returns persistence statistics.
func (l *EventLogger) Stats() (eventsWritten, errors int64, lastError error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventsWritten, l.errors, l.lastError
}

// FilePath returns the path to the JSONL file.
func (l *EventLogger) FilePath() string {
	return l.filePath
}
