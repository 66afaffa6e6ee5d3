package queue

import (
	"context"
	"sync"
	"time"
)

// DefaultDeadLetterCapacity bounds the in-memory sink; the oldest entries
// are evicted first.
const DefaultDeadLetterCapacity = 256

// DeadLetterEntry is a single rejected plan with its reason.
type DeadLetterEntry struct {
	Reason  string         `json:"reason"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// InMemoryDeadLetter implements schedule.DeadLetter as a bounded ring.
type InMemoryDeadLetter struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	cap     int
}

// NewInMemoryDeadLetter creates a sink with the default capacity.
func NewInMemoryDeadLetter() *InMemoryDeadLetter {
	return &InMemoryDeadLetter{cap: DefaultDeadLetterCapacity}
}

// Put records an entry, evicting the oldest when full.
func (d *InMemoryDeadLetter) Put(ctx context.Context, reason string, payload map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = append(d.entries, DeadLetterEntry{
		Reason:  reason,
		Payload: payload,
		At:      time.Now(),
	})
	if len(d.entries) > d.cap {
		d.entries = d.entries[len(d.entries)-d.cap:]
	}
}

// Entries returns a snapshot of the sink, oldest first.
func (d *InMemoryDeadLetter) Entries() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetterEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports the number of stored entries.
func (d *InMemoryDeadLetter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
