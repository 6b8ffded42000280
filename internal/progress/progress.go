// Package progress periodically samples a ledger and reports what it sees.
package progress

import (
	"context"
	"time"

	"github.com/NamanBalaji/tfetch/internal/console"
	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/logger"
	"github.com/NamanBalaji/tfetch/internal/metrics"
)

const (
	defaultInterval = time.Second
	defaultBarWidth = 30
)

// Source is anything that can produce a progress snapshot.
type Source interface {
	Snapshot() ledger.Snapshot
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the sampling cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithSink replaces the default log-and-metrics handling of each snapshot.
func WithSink(fn func(ledger.Snapshot)) Option {
	return func(r *Reporter) {
		r.sink = fn
	}
}

// WithBarWidth sets the width of the rendered progress bar.
func WithBarWidth(width int) Option {
	return func(r *Reporter) {
		r.barWidth = width
	}
}

// Reporter turns a Source into a stream of snapshots. It only reads from the
// source, so it never holds up the writers feeding it.
type Reporter struct {
	src      Source
	interval time.Duration
	barWidth int
	sink     func(ledger.Snapshot)
}

func New(src Source, opts ...Option) *Reporter {
	r := &Reporter{
		src:      src,
		interval: defaultInterval,
		barWidth: defaultBarWidth,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.sink == nil {
		r.sink = r.report
	}

	return r
}

// Interval returns the sampling cadence.
func (r *Reporter) Interval() time.Duration {
	return r.interval
}

// Stream starts a ticker and emits one snapshot per tick until ctx is done,
// then closes the channel. Nothing runs before Stream is called and each call
// is independent. A snapshot is dropped rather than sent when the consumer
// has not taken the previous one.
func (r *Reporter) Stream(ctx context.Context) <-chan ledger.Snapshot {
	out := make(chan ledger.Snapshot, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := r.src.Snapshot()
				r.sink(snap)

				select {
				case out <- snap:
				default:
				}
			}
		}
	}()

	return out
}

// Run drains a stream until ctx is done. It always returns nil so it can
// sit in an errgroup next to the fatal tasks.
func (r *Reporter) Run(ctx context.Context) error {
	for range r.Stream(ctx) {
	}

	return nil
}

// Final reports the current snapshot once, outside the ticker.
func (r *Reporter) Final() ledger.Snapshot {
	snap := r.src.Snapshot()
	r.sink(snap)

	return snap
}

func (r *Reporter) report(snap ledger.Snapshot) {
	metrics.ObserveSnapshot(snap)
	logger.Infof("%s", console.Line(r.barWidth, snap))
}
