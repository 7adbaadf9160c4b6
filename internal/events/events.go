// Package events provides an in-process publish/subscribe bus for job
// lifecycle notifications. Delivery is best-effort: slow subscribers drop
// events rather than stall the workers.
package events

import (
	"sync"
	"time"

	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
)

type Kind string

const (
	JobStarted    Kind = "job.started"
	JobCompleted  Kind = "job.completed"
	JobFailed     Kind = "job.failed"
	JobRetrying   Kind = "job.retrying"
	HealthChanged Kind = "health.changed"
)

type Event struct {
	Kind      Kind
	JobID     string
	MediaType media.Type
	Error     string
	Attempt   int
	Detail    string
	At        time.Time
}

const subscriberBuffer = 64

type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and a cancel function. The
// channel is closed on cancel or bus close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber, dropping it for any whose
// buffer is full.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Default().Debug("event dropped, subscriber buffer full",
				"kind", string(event.Kind), "job_id", event.JobID)
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
