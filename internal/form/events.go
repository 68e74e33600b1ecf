package form

import (
	"sync"
	"time"

	"github.com/zjrosen/formflow/internal/log"
)

// EventType identifies form events.
type EventType string

const (
	EventFieldChanged      EventType = "field.changed"
	EventFocusChanged      EventType = "focus.changed"
	EventValidatorsChanged EventType = "validators.changed"
	EventSubmitStarted     EventType = "submit.started"
	EventSubmitFailed      EventType = "submit.failed"
	EventSubmitSucceeded   EventType = "submit.succeeded"
	EventSubmitSettled     EventType = "submit.settled"
	EventSubmitErrored     EventType = "submit.errored"
)

// Event is published whenever form state changes.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Context
	Field     string `json:"field,omitempty"`
	AttemptID string `json:"attempt_id,omitempty"`

	// Payloads (set depending on Type)
	State       *FieldState    `json:"state,omitempty"`
	Errors      map[string]any `json:"errors,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	SubmitError error          `json:"-"`
	Submitting  bool           `json:"submitting"`
}

// DefaultSubscriberBuffer is the channel capacity used when Subscribe is
// called with a non-positive buffer.
const DefaultSubscriberBuffer = 64

// Broker fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers e to every subscriber.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Warn(log.CatForm, "subscriber buffer full, event dropped", "subscriber", id, "type", e.Type)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
