package log

import "sync"

// RingBuffer holds the most recent entries for in-app display.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	size     int
}

// NewRingBuffer creates a buffer with given capacity.
// Capacity must be >= 1; values <= 0 are normalized to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest if full.
func (r *RingBuffer) Add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Len reports how many entries are stored.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// GetLast returns the last n entries, oldest first.
func (r *RingBuffer) GetLast(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n = min(n, r.size)
	if n <= 0 {
		return nil
	}

	result := make([]Entry, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := range n {
		result[i] = r.entries[(start+i)%r.capacity]
	}
	return result
}

// Filter returns stored entries at or above minLevel, oldest first.
func (r *RingBuffer) Filter(minLevel Level) []Entry {
	var out []Entry
	for _, e := range r.GetLast(r.Len()) {
		if e.Level >= minLevel {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the buffer.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
	clear(r.entries)
}
