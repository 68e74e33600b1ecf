package form

import (
	"maps"
	"slices"
	"sync"

	"github.com/zjrosen/formflow/internal/future"
)

// Tracker keeps the in-flight validation task of every field and a
// generation counter per field name.
//
// Starting a change bumps the field's generation. A write-back is only
// applied while its generation is still current, so a validation that was
// superseded keeps running but can no longer overwrite fresher state. At
// most one task per field is tracked; tracking a new one replaces the old
// entry without cancelling it.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]pendingTask
	gens    map[string]uint64
}

type pendingTask struct {
	gen  uint64
	task future.Settler
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]pendingTask),
		gens:    make(map[string]uint64),
	}
}

// Begin bumps and returns the generation of name. Any tracked task for name
// stops being tracked.
func (t *Tracker) Begin(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gens[name]++
	delete(t.entries, name)
	return t.gens[name]
}

// Track records task as the in-flight validation of name for generation gen.
// The returned release function removes the entry, but only while it is
// still the entry registered for that generation.
func (t *Tracker) Track(name string, gen uint64, task future.Settler) (release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen == t.gens[name] {
		t.entries[name] = pendingTask{gen: gen, task: task}
	}
	return func() {
		t.release(name, gen)
	}
}

func (t *Tracker) release(name string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[name]; ok && entry.gen == gen {
		delete(t.entries, name)
	}
}

// IsCurrent reports whether gen is the latest generation of name.
func (t *Tracker) IsCurrent(name string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gens[name] == gen
}

// Snapshot returns the tasks in flight right now. Tasks tracked later are
// not part of the returned slice.
func (t *Tracker) Snapshot() []future.Settler {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]future.Settler, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.task)
	}
	return out
}

// Pending returns the names of fields with a tracked task, sorted.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.entries))
}

// Len reports how many tasks are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
