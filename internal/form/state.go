package form

import (
	"maps"
	"sync"
	"time"

	"github.com/zjrosen/formflow/internal/log"
)

// Status is the validation state of a field.
type Status string

const (
	StatusValid   Status = "valid"
	StatusLoading Status = "loading"
	StatusInvalid Status = "invalid"
)

// FieldState is the stored state of one named field.
type FieldState struct {
	Value    any    `json:"value"`
	Status   Status `json:"status"`
	Error    any    `json:"error,omitempty"`
	Pristine bool   `json:"pristine"`
	// Focused is derived from the navigator at read time.
	Focused bool `json:"focused"`
}

// Store holds per-field state. Every applied write publishes an event.
type Store struct {
	mu       sync.RWMutex
	fields   map[string]FieldState
	defaults map[string]any

	focused func(name string) bool
	publish func(Event)
}

// NewStore creates a store. defaults are the externally supplied initial
// values; focused reports the navigator's current target; publish receives
// one event per applied write. focused and publish may be nil.
func NewStore(defaults map[string]any, focused func(string) bool, publish func(Event)) *Store {
	return &Store{
		fields:   make(map[string]FieldState),
		defaults: maps.Clone(defaults),
		focused:  focused,
		publish:  publish,
	}
}

// Default returns the externally supplied default for name.
func (s *Store) Default(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.defaults[name]
	return v, ok
}

// SetDefaults replaces the externally supplied defaults.
func (s *Store) SetDefaults(defaults map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = maps.Clone(defaults)
}

// Read returns the stored state for name, or the default state when the
// field has not been written yet.
func (s *Store) Read(name string) FieldState {
	s.mu.RLock()
	st, ok := s.fields[name]
	if !ok {
		st = s.defaultStateLocked(name)
	}
	s.mu.RUnlock()

	st.Focused = s.isFocused(name)
	return st
}

// Snapshot returns a copy of every written field.
func (s *Store) Snapshot() map[string]FieldState {
	s.mu.RLock()
	out := maps.Clone(s.fields)
	s.mu.RUnlock()

	if out == nil {
		out = make(map[string]FieldState)
	}
	for name, st := range out {
		st.Focused = s.isFocused(name)
		out[name] = st
	}
	return out
}

// Write merges patch into the existing or default state of name.
// Last write wins.
func (s *Store) Write(name string, patch func(*FieldState)) {
	s.Update(name, func(st *FieldState) bool {
		patch(st)
		return true
	})
}

// Update applies patch under the store lock and keeps the result only when
// patch returns true. patch must not call back into the store.
func (s *Store) Update(name string, patch func(*FieldState) bool) bool {
	s.mu.Lock()
	st, ok := s.fields[name]
	if !ok {
		st = s.defaultStateLocked(name)
	}
	if !patch(&st) {
		s.mu.Unlock()
		return false
	}
	if st.Status != StatusInvalid {
		st.Error = nil
	}
	st.Focused = false
	s.fields[name] = st
	s.mu.Unlock()

	st.Focused = s.isFocused(name)
	log.Debug(log.CatForm, "field written", "field", name, "status", st.Status)
	if s.publish != nil {
		s.publish(Event{
			Type:      EventFieldChanged,
			Timestamp: time.Now(),
			Field:     name,
			State:     &st,
		})
	}
	return true
}

func (s *Store) defaultStateLocked(name string) FieldState {
	return FieldState{
		Value:    s.defaults[name],
		Status:   StatusValid,
		Pristine: true,
	}
}

func (s *Store) isFocused(name string) bool {
	return s.focused != nil && s.focused(name)
}
