package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Consume once the bus is closed and drained.
var ErrClosed = errors.New("event bus closed")

// Bus is an unbounded multi-producer, single-consumer FIFO. Publish is
// safe from any goroutine, including OS-thread-pinned input callbacks;
// Consume must only be called by the one owning consumer. Events are
// delivered in publish order and are never dropped or duplicated while
// the bus is open.
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	// wake carries at most one pending signal; the consumer re-checks
	// the queue after each wake, so a coalesced signal is sufficient.
	wake chan struct{}

	logger *slog.Logger
}

// NewBus creates an open, empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Publish enqueues an event without blocking. Events published before
// the consumer starts are held until it does. Publishing on a closed
// bus is a logged no-op so producer threads never crash the input path.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("publish on closed bus dropped", slog.String("kind", string(ev.Kind)))
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	b.signal()
}

// Consume returns the next event in arrival order, suspending when the
// queue is empty. It returns ErrClosed once the bus has been closed and
// every prior event has been delivered, or ctx.Err() on cancellation.
func (b *Bus) Consume(ctx context.Context) (Event, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Event{}, ErrClosed
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close marks the bus closed and releases a pending Consume. Idempotent.
// Events already queued remain deliverable; see Consume.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

// Len reports the number of undelivered events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
