package persistence

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/zjrosen/formflow/internal/form"
)

// LoadPersistedEvents loads every persisted event from dir. A missing file
// yields an empty slice. Malformed lines are skipped.
func LoadPersistedEvents(dir string) ([]PersistedEvent, error) {
	filePath := filepath.Join(dir, EventsFile)

	file, err := os.Open(filePath) //nolint:gosec // caller-chosen path
	if err != nil {
		if os.IsNotExist(err) {
			return []PersistedEvent{}, nil
		}
		return nil, fmt.Errorf("opening form events file: %w", err)
	}
	defer func() { _ = file.Close() }()

	events := []PersistedEvent{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pe PersistedEvent
		if err := json.Unmarshal(line, &pe); err != nil {
			continue
		}
		events = append(events, pe)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning form events file: %w", err)
	}
	return events, nil
}

// Submission summarizes one submit attempt found in a log.
type Submission struct {
	AttemptID string
	Outcome   form.EventType
	Errors    map[string]any
	Error     string
}

// Replay is the state rebuilt from a log.
type Replay struct {
	Fields      map[string]StateRecord
	Submissions []Submission
	Validators  []string
}

// FieldNames returns the replayed field names, sorted.
func (r *Replay) FieldNames() []string {
	return slices.Sorted(maps.Keys(r.Fields))
}

// ReplayEvents folds events, in order, into the last known state of every
// field and the final outcome of every submit attempt.
func ReplayEvents(events []PersistedEvent) *Replay {
	r := &Replay{Fields: make(map[string]StateRecord)}
	byAttempt := make(map[string]int)

	for _, pe := range events {
		e := pe.Event
		switch e.Type {
		case form.EventFieldChanged:
			if e.State != nil && e.Field != "" {
				r.Fields[e.Field] = *e.State
			}

		case form.EventValidatorsChanged:
			r.Validators = stringSlice(e.Data["names"])

		case form.EventSubmitStarted:
			byAttempt[e.AttemptID] = len(r.Submissions)
			r.Submissions = append(r.Submissions, Submission{AttemptID: e.AttemptID, Outcome: e.Type})

		case form.EventSubmitFailed, form.EventSubmitSucceeded, form.EventSubmitSettled, form.EventSubmitErrored:
			idx, ok := byAttempt[e.AttemptID]
			if !ok {
				continue
			}
			s := &r.Submissions[idx]
			s.Outcome = e.Type
			if e.Errors != nil {
				s.Errors = e.Errors
			}
			if e.Error != "" {
				s.Error = e.Error
			}
		}
	}
	return r
}

func stringSlice(v any) []string {
	if names, ok := v.([]string); ok {
		return slices.Clone(names)
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
