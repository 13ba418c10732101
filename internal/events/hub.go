// Package events publishes supervisor lifecycle notifications as structured
// data for the status API and the watch TUI.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event types published by the supervisor.
const (
	BuildInvalidated   = "build.invalidated"
	BuildStarted       = "build.started"
	BuildFailed        = "build.failed"
	BuildCompleted     = "build.completed"
	ExecutionScheduled = "execution.scheduled"
	ExecutionSkipped   = "execution.skipped"
	ProcessStarting    = "process.starting"
	ProcessReplaced    = "process.replaced"
	ProcessStarted     = "process.started"
	ProcessExited      = "process.exited"
)

const subscriberBuffer = 128

type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Filter selects event types. An entry matches a type exactly, or every
// type in a family when written as the family name ("build" matches
// "build.started"). An empty filter matches everything.
type Filter []string

// ParseFilter splits a comma separated list, dropping blanks.
func ParseFilter(s string) Filter {
	var f Filter
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			f = append(f, part)
		}
	}
	return f
}

func (f Filter) Match(eventType string) bool {
	if len(f) == 0 {
		return true
	}
	for _, want := range f {
		if want == eventType || strings.HasPrefix(eventType, want+".") {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// A nil *Hub drops everything, so components can run without one.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	ring   []Event
	start  int
	size   int

	subs      map[int]subscriber
	nextSubID int
	dropped   int64
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]subscriber),
	}
}

// Publish records an event and fans it out to matching subscribers. Data is
// encoded as JSON; encoding failures publish an empty object.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// IDs are assigned under the lock so ring order and ID order agree.
	h.nextID++
	ev := Event{
		ID:   h.nextID,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(ev)

	for _, sub := range h.subs {
		if !sub.filter.Match(eventType) {
			continue
		}
		// Don't let slow clients block the supervisor loop.
		select {
		case sub.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Subscribe returns a channel of live events matching filter. The returned
// cancel func closes the channel.
func (h *Hub) Subscribe(filter ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked(filter)
}

// Replay returns the buffered events newer than lastID together with a live
// subscription. Both are taken under one lock, so no event falls between the
// replayed slice and the first live event.
func (h *Hub) Replay(lastID int64, filter ...string) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	backlog := h.snapshotLocked(lastID, filter)
	ch, cancel := h.subscribeLocked(filter)
	return backlog, ch, cancel
}

func (h *Hub) subscribeLocked(filter Filter) (<-chan Event, func()) {
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = subscriber{ch: ch, filter: filter}

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(lastID, nil)
}

func (h *Hub) snapshotLocked(lastID int64, filter Filter) []Event {
	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID && filter.Match(ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

// Types returns the types of the buffered events, oldest-first.
func (h *Hub) Types() []string {
	evs := h.SnapshotSince(0)
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// Dropped counts deliveries skipped because a subscriber's buffer was full.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
