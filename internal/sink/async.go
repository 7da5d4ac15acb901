// Package sink provides an asynchronous EventSink that moves persistence
// off the simulation tick path.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

var (
	// ErrQueueFull is returned when an event cannot be enqueued without blocking.
	ErrQueueFull = errors.New("sink queue full")
	// ErrClosed is returned for events submitted after Close.
	ErrClosed = errors.New("sink closed")
)

type event struct {
	user    bool
	agentID int
	state   epidemic.HealthState
	contact epidemic.ContactEvent
}

// Async forwards events to a downstream EventSink from a single goroutine.
// Enqueueing never blocks: when the buffer is full the event is dropped and
// ErrQueueFull is returned to the caller.
type Async struct {
	next   epidemic.EventSink
	logger *slog.Logger

	queue  chan event
	errs   chan error
	done   chan struct{}
	mu     sync.RWMutex
	closed bool

	statsMu   sync.Mutex
	delivered int
	dropped   int
	failed    int
}

// NewAsync starts the worker goroutine. bufferSize values below 1 are
// raised to 1. A nil logger discards output.
func NewAsync(next epidemic.EventSink, bufferSize int, logger *slog.Logger) *Async {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan event, bufferSize),
		errs:   make(chan error, bufferSize),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		var err error
		if ev.user {
			err = a.next.CreateUser(ev.agentID, ev.state)
		} else {
			err = a.next.InsertContact(ev.contact)
		}

		a.statsMu.Lock()
		if err != nil {
			a.failed++
		} else {
			a.delivered++
		}
		a.statsMu.Unlock()

		if err != nil {
			a.logger.Warn("sink write failed", "error", err)
			select {
			case a.errs <- err:
			default:
			}
		}
	}
}

// CreateUser enqueues a user record.
func (a *Async) CreateUser(agentID int, state epidemic.HealthState) error {
	return a.enqueue(event{user: true, agentID: agentID, state: state})
}

// InsertContact enqueues a contact record.
func (a *Async) InsertContact(e epidemic.ContactEvent) error {
	return a.enqueue(event{contact: e})
}

func (a *Async) enqueue(ev event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		a.statsMu.Lock()
		a.dropped++
		a.statsMu.Unlock()
		return fmt.Errorf("dropping event: %w", ErrQueueFull)
	}
}

// Errors returns downstream write failures. Failures beyond the channel
// capacity are logged and counted but not delivered here.
func (a *Async) Errors() <-chan error { return a.errs }

// Stats reports how many events were delivered, dropped at enqueue, or
// failed downstream.
type Stats struct {
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
}

// Stats returns a snapshot of the sink counters.
func (a *Async) Stats() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return Stats{Delivered: a.delivered, Dropped: a.dropped, Failed: a.failed}
}

// Close stops accepting events and waits for queued events to drain or
// for ctx to end. It is safe to call more than once.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining sink: %w", ctx.Err())
	}
}
