// Package transfertest provides a scripted transfer.Engine for tests.
package transfertest

import (
	"context"
	"sync"

	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/transfer"
)

// Engine replays a fixed list of events.
type Engine struct {
	// StartErr is returned by Start when set.
	StartErr error
	// Fatal is returned by Wait once every event has been delivered.
	Fatal error
	// Hold keeps the event channel open after the script until Close or
	// cancellation.
	Hold bool

	events []ledger.Event

	mu      sync.Mutex
	job     transfer.Job
	started bool

	sent      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transfer.Engine = (*Engine)(nil)

// New returns an engine that emits events in order after Start.
func New(events ...ledger.Event) *Engine {
	return &Engine{
		events: events,
		sent:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Verify returns a PieceRequested, PieceVerified pair for every index.
func Verify(indices ...int) []ledger.Event {
	out := make([]ledger.Event, 0, 2*len(indices))
	for _, i := range indices {
		out = append(out,
			ledger.Event{Kind: ledger.PieceRequested, Index: i},
			ledger.Event{Kind: ledger.PieceVerified, Index: i},
		)
	}

	return out
}

func (e *Engine) Start(ctx context.Context, job transfer.Job) (<-chan ledger.Event, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if e.StartErr != nil {
		return nil, e.StartErr
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, transfer.ErrAlreadyStarted
	}

	e.started = true
	e.job = job
	e.mu.Unlock()

	out := make(chan ledger.Event)

	go func() {
		defer close(out)

		for _, ev := range e.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-e.closed:
				return
			}
		}

		close(e.sent)

		if e.Hold {
			select {
			case <-ctx.Done():
			case <-e.closed:
			}
		}
	}()

	return out, nil
}

func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return nil
	case <-e.sent:
	}

	if e.Fatal != nil {
		return e.Fatal
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return nil
	}
}

func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

// Job returns the job passed to Start.
func (e *Engine) Job() transfer.Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.job
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}
