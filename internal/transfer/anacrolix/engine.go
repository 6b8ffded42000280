// Package anacrolix implements transfer.Engine on top of the anacrolix
// BitTorrent client.
package anacrolix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"github.com/NamanBalaji/tfetch/internal/config"
	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/logger"
	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/transfer"
)

const eventBuffer = 64

var (
	ErrEngineClosed  = errors.New("engine closed")
	ErrTorrentClosed = errors.New("torrent closed unexpectedly")
	ErrInfoMismatch  = errors.New("engine disagrees with decoded metadata")

	errHashMismatch = errors.New("piece hash mismatch")
)

// Engine drives a single torrent through an anacrolix client.
type Engine struct {
	cfg        *config.TorrentConfig
	completion storage.PieceCompletion

	mu      sync.Mutex
	client  *torrent.Client
	t       *torrent.Torrent
	started bool

	fatal     chan error
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ transfer.Engine = (*Engine)(nil)

// New returns an engine. A nil completion store keeps piece completion in
// memory only.
func New(cfg *config.TorrentConfig, completion storage.PieceCompletion) *Engine {
	if cfg == nil {
		cfg = &config.TorrentConfig{}
	}

	if completion == nil {
		completion = storage.NewMapPieceCompletion()
	}

	return &Engine{
		cfg:        cfg,
		completion: completion,
		fatal:      make(chan error, 1),
		closed:     make(chan struct{}),
	}
}

// Start adds the torrent, restricts downloading to the planned pieces and
// begins translating piece state changes into ledger events.
func (e *Engine) Start(ctx context.Context, job transfer.Job) (<-chan ledger.Event, error) {
	if err := job.Validate(); err != nil {
		return nil, errors.NewEngineError(err, "job")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil, transfer.ErrAlreadyStarted
	}

	select {
	case <-e.closed:
		return nil, errors.NewEngineError(ErrEngineClosed, job.Metadata.Name)
	default:
	}

	if err := os.MkdirAll(job.Dir, 0o755); err != nil {
		return nil, errors.NewIOError(err, job.Dir)
	}

	mi, err := metainfo.Load(bytes.NewReader(job.Metadata.Raw))
	if err != nil {
		return nil, errors.NewEngineError(fmt.Errorf("loading descriptor: %w", err), job.Metadata.Name)
	}

	client, err := torrent.NewClient(newClientConfig(e.cfg, job.Dir, e.completion))
	if err != nil {
		return nil, errors.NewEngineError(fmt.Errorf("creating client: %w", err), job.Metadata.Name)
	}

	t, err := client.AddTorrent(mi)
	if err != nil {
		client.Close()
		return nil, errors.NewEngineError(fmt.Errorf("adding torrent: %w", err), job.Metadata.Name)
	}

	select {
	case <-ctx.Done():
		t.Drop()
		client.Close()

		return nil, errors.NewContextError(ctx.Err(), job.Metadata.Name)
	case <-t.GotInfo():
	}

	if t.NumPieces() != job.Metadata.NumPieces() || [20]byte(t.InfoHash()) != [20]byte(job.Metadata.InfoHash) {
		t.Drop()
		client.Close()

		return nil, errors.NewEngineError(ErrInfoMismatch, job.Metadata.Name)
	}

	sub := t.SubscribePieceStateChanges()

	tiers := job.Tiers
	if len(tiers) == 0 && len(job.Plan) > 0 {
		tiers = []planner.Tier{{Priority: planner.PriorityNormal, Pieces: job.Plan}}
	}

	applyPriorities(t, tiers)

	e.client = client
	e.t = t
	e.started = true

	out := make(chan ledger.Event, eventBuffer)
	tr := newTracker(t.NumPieces(), job.Plan)

	e.wg.Add(2)

	go e.pump(ctx, t, sub.Values, func() { sub.Close() }, tr, job.Plan, out)
	go e.watch(t)

	logger.Infof("Fetching %d of %d pieces of %s into %s", len(job.Plan), t.NumPieces(), t.Name(), job.Dir)

	return out, nil
}

// Wait blocks until the torrent fails, the engine is closed or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-e.fatal:
		return err
	case <-e.closed:
		return nil
	}
}

// Close drops the torrent and shuts the client down. It is safe to call more
// than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		t, client := e.t, e.client
		e.mu.Unlock()

		if t != nil {
			t.Drop()
		}

		if client != nil {
			client.Close()
		}
	})

	e.wg.Wait()

	return nil
}

func (e *Engine) pump(
	ctx context.Context,
	t *torrent.Torrent,
	values <-chan torrent.PieceStateChange,
	unsubscribe func(),
	tr *tracker,
	plan []int,
	out chan<- ledger.Event,
) {
	defer e.wg.Done()
	defer close(out)
	defer unsubscribe()

	// Pieces already on disk never produce a change notification.
	for _, i := range plan {
		if !e.emit(ctx, out, tr.translate(i, t.PieceState(i))) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case v, ok := <-values:
			if !ok {
				return
			}

			if !e.emit(ctx, out, tr.translate(v.Index, v.PieceState)) {
				return
			}
		}
	}
}

func (e *Engine) emit(ctx context.Context, out chan<- ledger.Event, events []ledger.Event) bool {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return false
		case <-e.closed:
			return false
		}
	}

	return true
}

func (e *Engine) watch(t *torrent.Torrent) {
	defer e.wg.Done()

	select {
	case <-e.closed:
	case <-t.Closed():
		select {
		case <-e.closed:
		default:
			e.fail(errors.NewEngineError(ErrTorrentClosed, t.Name()))
		}
	}
}

func (e *Engine) fail(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}
