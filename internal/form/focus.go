package form

import (
	"slices"
	"sync"

	"github.com/zjrosen/formflow/internal/log"
)

// Navigator keeps the ordered field names and the focused field.
//
// Whenever the sequence changes, focus returns to the first name. Focus
// itself is not checked against the sequence; a focused name that is no
// longer registered is treated as sitting before the first field.
type Navigator struct {
	mu      sync.RWMutex
	names   []string
	focused string

	onChange func(from, to string)
}

// NewNavigator creates an empty navigator. onChange, if set, is called
// outside the lock after every focus change.
func NewNavigator(onChange func(from, to string)) *Navigator {
	return &Navigator{onChange: onChange}
}

// SetFieldNames replaces the sequence, e.g. after a tree walk discovered the
// fields, and focuses the first one.
func (n *Navigator) SetFieldNames(names []string) {
	n.mu.Lock()
	n.names = slices.Clone(names)
	from, to := n.resetLocked()
	n.mu.Unlock()
	n.notify(from, to)
}

// Register appends name unless present. Returns false for duplicates.
func (n *Navigator) Register(name string) bool {
	n.mu.Lock()
	if slices.Contains(n.names, name) {
		n.mu.Unlock()
		return false
	}
	n.names = append(n.names, name)
	from, to := n.resetLocked()
	n.mu.Unlock()
	n.notify(from, to)
	return true
}

// Deregister removes name from the sequence.
func (n *Navigator) Deregister(name string) {
	n.mu.Lock()
	idx := slices.Index(n.names, name)
	if idx < 0 {
		n.mu.Unlock()
		return
	}
	n.names = slices.Delete(n.names, idx, idx+1)
	from, to := n.resetLocked()
	n.mu.Unlock()
	n.notify(from, to)
}

// Names returns a copy of the sequence.
func (n *Navigator) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.names)
}

// Focus sets the focused field unconditionally.
func (n *Navigator) Focus(name string) {
	n.mu.Lock()
	from := n.focused
	n.focused = name
	n.mu.Unlock()
	n.notify(from, name)
}

// Focused returns the focused field name, or "" when there is none.
func (n *Navigator) Focused() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.focused
}

// IsFocused reports whether name is the focused field.
func (n *Navigator) IsFocused(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.focused != "" && n.focused == name
}

// Advance moves focus to the field after the focused one. It returns false
// when the focused field is the last one (or there are no fields), which is
// the caller's cue to submit. A focused name missing from the sequence
// advances to the first field.
func (n *Navigator) Advance() (next string, ok bool) {
	n.mu.Lock()
	idx := slices.Index(n.names, n.focused)
	if idx+1 >= len(n.names) {
		n.mu.Unlock()
		return "", false
	}
	from := n.focused
	n.focused = n.names[idx+1]
	next = n.focused
	n.mu.Unlock()

	n.notify(from, next)
	return next, true
}

func (n *Navigator) resetLocked() (from, to string) {
	from = n.focused
	n.focused = ""
	if len(n.names) > 0 {
		n.focused = n.names[0]
	}
	return from, n.focused
}

func (n *Navigator) notify(from, to string) {
	if from == to {
		return
	}
	log.Debug(log.CatFocus, "focus changed", "from", from, "to", to)
	if n.onChange != nil {
		n.onChange(from, to)
	}
}
