// Package ledger tracks the lifecycle of every planned piece and aggregates
// progress over the selected files.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NamanBalaji/tfetch/internal/logger"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

const defaultRateWindow = 5 * time.Second

type piece struct {
	status PieceStatus
	// weight is the part of the piece that lies inside the selection.
	weight int64
}

type sample struct {
	at    time.Time
	bytes int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRateWindow sets the sliding window used for RatePerSecond.
func WithRateWindow(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithEventHook registers fn to observe every applied event together with
// the transition error, if any. fn runs on the event loop.
func WithEventHook(fn func(Event, error)) Option {
	return func(l *Ledger) {
		l.hook = fn
	}
}

// Ledger is the per-piece state machine for one session. Status changes and
// the aggregate counters are updated under a single lock so readers never
// see one without the other.
type Ledger struct {
	mu     sync.RWMutex
	pieces map[int]*piece
	plan   []int

	bytesTotal     int64
	bytesVerified  int64
	piecesVerified int
	failures       int

	started time.Time
	window  time.Duration
	samples []sample
	now     func() time.Time
	hook    func(Event, error)

	done     chan struct{}
	doneOnce sync.Once
}

// New builds a ledger for plan. Every planned piece starts Missing.
func New(md *metainfo.Metadata, sel *selection.Set, plan []int, opts ...Option) *Ledger {
	l := &Ledger{
		pieces: make(map[int]*piece, len(plan)),
		plan:   append([]int(nil), plan...),
		window: defaultRateWindow,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.started = l.now()

	for _, idx := range plan {
		if _, dup := l.pieces[idx]; dup {
			continue
		}

		start := md.PieceOffset(idx)
		weight := sel.Overlap(start, start+md.PieceSize(idx))

		l.pieces[idx] = &piece{weight: weight}
		l.bytesTotal += weight
	}

	if len(l.pieces) == 0 {
		l.closeDone()
	}

	return l
}

// OnPieceRequested moves a piece from Missing to Requested.
func (l *Ledger) OnPieceRequested(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(index)
	if err != nil {
		return err
	}

	if p.status != Missing {
		return fmt.Errorf("%w: piece %d is %s, cannot request", ErrInvalidTransition, index, p.status)
	}

	p.status = Requested

	return nil
}

// OnPieceVerified moves a piece to Verified. A Missing piece is accepted as
// well since data already on disk is verified without being requested.
func (l *Ledger) OnPieceVerified(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(index)
	if err != nil {
		return err
	}

	if p.status == Verified {
		return fmt.Errorf("%w: piece %d already verified", ErrInvalidTransition, index)
	}

	fetched := p.status == Requested

	p.status = Verified
	l.piecesVerified++
	l.bytesVerified += p.weight

	// Pieces found on disk were not transferred and do not count toward the rate.
	if fetched {
		now := l.now()
		l.prune(now)
		l.samples = append(l.samples, sample{at: now, bytes: p.weight})
	}

	if l.piecesVerified == len(l.pieces) {
		l.closeDone()
	}

	return nil
}

// OnPieceFailed returns a Requested piece to Missing after a failed hash check.
func (l *Ledger) OnPieceFailed(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(index)
	if err != nil {
		return err
	}

	if p.status != Requested {
		return fmt.Errorf("%w: piece %d is %s, cannot fail", ErrInvalidTransition, index, p.status)
	}

	p.status = Missing
	l.failures++

	return nil
}

// Apply dispatches ev to the matching transition.
func (l *Ledger) Apply(ev Event) error {
	switch ev.Kind {
	case PieceRequested:
		return l.OnPieceRequested(ev.Index)
	case PieceVerified:
		return l.OnPieceVerified(ev.Index)
	case PieceFailed:
		return l.OnPieceFailed(ev.Index)
	default:
		return fmt.Errorf("%w: unknown event kind %d", ErrInvalidTransition, ev.Kind)
	}
}

// Run applies events until the channel closes or ctx is done. Rejected
// events are logged and dropped; they never stop the loop.
func (l *Ledger) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			err := l.Apply(ev)

			switch {
			case err != nil:
				logger.Debugf("Ignoring %s event for piece %d: %v", ev.Kind, ev.Index, err)
			case ev.Kind == PieceFailed:
				logger.Debugf("Piece %d failed verification, requeued: %v", ev.Index, ev.Err)
			}

			if l.hook != nil {
				l.hook(ev, err)
			}
		}
	}
}

// Status returns the state of a planned piece.
func (l *Ledger) Status(index int) (PieceStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, err := l.lookup(index)
	if err != nil {
		return Missing, err
	}

	return p.status, nil
}

// IsComplete reports whether every planned piece is Verified.
func (l *Ledger) IsComplete() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.piecesVerified == len(l.pieces)
}

// Pending returns planned pieces not yet verified, in plan order.
func (l *Ledger) Pending() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []int

	for _, idx := range l.plan {
		if p := l.pieces[idx]; p.status != Verified {
			out = append(out, idx)
		}
	}

	return out
}

// Snapshot returns a consistent view of the counters.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()

	return Snapshot{
		BytesVerified:  l.bytesVerified,
		BytesTotal:     l.bytesTotal,
		PiecesVerified: l.piecesVerified,
		PiecesTotal:    len(l.pieces),
		RatePerSecond:  l.rate(now),
		Failures:       l.failures,
		Taken:          now,
	}
}

// Done is closed exactly once, when the last planned piece is verified.
func (l *Ledger) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the ledger completes or ctx is done.
func (l *Ledger) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) lookup(index int) (*piece, error) {
	p, ok := l.pieces[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnplannedPiece, index)
	}

	return p, nil
}

// prune drops samples older than the rate window. Callers hold mu for writing.
func (l *Ledger) prune(now time.Time) {
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(l.samples) && !l.samples[i].at.After(cutoff) {
		i++
	}

	l.samples = l.samples[i:]
}

// rate averages verified bytes over the window, or over the time since
// start when the session is younger than the window.
func (l *Ledger) rate(now time.Time) float64 {
	span := min(l.window, now.Sub(l.started))
	if span <= 0 {
		return 0
	}

	cutoff := now.Add(-l.window)

	var total int64
	for _, s := range l.samples {
		if s.at.After(cutoff) {
			total += s.bytes
		}
	}

	return float64(total) / span.Seconds()
}

func (l *Ledger) closeDone() {
	l.doneOnce.Do(func() {
		close(l.done)
	})
}
