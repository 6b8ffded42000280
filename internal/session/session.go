// Package session runs one fetch from descriptor to verified selection.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	btmeta "github.com/anacrolix/torrent/metainfo"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/tfetch/internal/config"
	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/fetch"
	"github.com/NamanBalaji/tfetch/internal/filesystem"
	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/logger"
	"github.com/NamanBalaji/tfetch/internal/metrics"
	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/progress"
	"github.com/NamanBalaji/tfetch/internal/repository"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/internal/transfer"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

var (
	ErrTargetExists     = errors.New("target file already exists")
	ErrEngineStopped    = errors.New("engine stopped before the selection completed")
	ErrTooManyFailures  = errors.New("piece failure budget exhausted")
	ErrNameNeedsOneFile = errors.New("renaming requires exactly one selected file")

	errComplete = errors.New("selection complete")
)

type Option func(*Session)

// WithFetcher replaces the default descriptor fetcher.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(s *Session) {
		s.fetcher = f
	}
}

// WithCompletion gives the session the engine's piece completion store so it
// can tell a resumable download from a foreign file and clear stale state.
func WithCompletion(repo repository.Repository) Option {
	return func(s *Session) {
		s.completion = repo
	}
}

// WithFileSystem replaces the file operations used on output paths.
func WithFileSystem(fsys filesystem.FileSystem) Option {
	return func(s *Session) {
		s.fs = fsys
	}
}

func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(s *Session) {
		s.ledgerOpts = append(s.ledgerOpts, opts...)
	}
}

func WithReporterOptions(opts ...progress.Option) Option {
	return func(s *Session) {
		s.reporterOpts = append(s.reporterOpts, opts...)
	}
}

// Session carries everything one run needs. Nothing is shared between
// sessions.
type Session struct {
	ID uuid.UUID

	cfg        *config.Config
	engine     transfer.Engine
	fetcher    *fetch.Fetcher
	completion repository.Repository
	fs         filesystem.FileSystem
	log        *logger.Scope

	ledgerOpts   []ledger.Option
	reporterOpts []progress.Option

	mu     sync.RWMutex
	ledger *ledger.Ledger
}

func New(cfg *config.Config, engine transfer.Engine, opts ...Option) *Session {
	s := &Session{
		ID:     uuid.New(),
		cfg:    cfg,
		engine: engine,
	}

	s.log = logger.With("session", s.ID.String())

	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = fetch.New(nil, cfg.MaxMetadataBytes)
	}

	if s.fs == nil {
		s.fs = filesystem.NewOSFileSystem()
	}

	return s
}

// Ledger returns the ledger of the running or finished transfer, or nil
// before Execute.
func (s *Session) Ledger() *ledger.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledger
}

// Run fetches source, prepares the job and executes it.
func (s *Session) Run(ctx context.Context, source string) (ledger.Snapshot, error) {
	job, err := s.Prepare(ctx, source)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	return s.Execute(ctx, job)
}

// Prepare fetches and decodes the descriptor, selects files, plans pieces and
// readies the output paths. It fails before any engine is involved.
func (s *Session) Prepare(ctx context.Context, source string) (*transfer.Job, error) {
	data, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	md, err := metainfo.Decode(data)
	if err != nil {
		return nil, errors.NewMetadataError(err, source)
	}

	sel, err := selection.Select(md, s.cfg.Pattern)
	if err != nil {
		if errors.Is(err, selection.ErrInvalidPattern) {
			return nil, errors.NewConfigError(err, "pattern")
		}

		return nil, errors.NewSelectionError(err, s.cfg.Pattern)
	}

	if s.cfg.Name != "" && len(sel.Files) != 1 {
		return nil, errors.NewConfigError(fmt.Errorf("%w: %d selected", ErrNameNeedsOneFile, len(sel.Files)), "name")
	}

	plan := planner.Plan(md, sel)

	job := &transfer.Job{
		Metadata:  md,
		Selection: sel,
		Plan:      plan,
		Tiers:     planner.Tiers(md, sel, plan, s.cfg.Readahead),
		Dir:       s.cfg.Dir,
	}

	s.log.Infof("Selected %d of %d files (%s) from %s, %d of %d pieces",
		len(sel.Files), len(md.Files), humanize.IBytes(uint64(sel.Bytes())), md.Name, len(plan), md.NumPieces())

	if err := s.prepareTargets(job); err != nil {
		return nil, err
	}

	return job, nil
}

// prepareTargets applies the overwrite policy to selected files already on
// disk. Files the completion store knows about are resumed.
func (s *Session) prepareTargets(job *transfer.Job) error {
	hash := btmeta.Hash(job.Metadata.InfoHash)

	if err := s.prepareRenameTarget(job); err != nil {
		return err
	}

	var (
		existing  []string
		resumable bool
	)

	for _, path := range job.Targets() {
		ok, err := filesystem.FileExists(s.fs, path)
		if errors.Is(err, filesystem.ErrIsDirectory) {
			return errors.NewIOError(fmt.Errorf("%w: %s is a directory", ErrTargetExists, path), path)
		}

		if err != nil {
			return errors.NewIOError(err, path)
		}

		if !ok {
			continue
		}

		existing = append(existing, path)
	}

	if len(existing) == 0 {
		return nil
	}

	if s.completion != nil && !s.cfg.Overwrite {
		done, err := s.completion.Completed(hash)
		if err != nil {
			return errors.NewIOError(err, "completion store")
		}

		resumable = len(done) > 0
	}

	switch {
	case resumable:
		s.log.Infof("Resuming %s, %d selected files already on disk", job.Metadata.Name, len(existing))
		return nil
	case !s.cfg.Overwrite:
		return errors.NewIOError(ErrTargetExists, existing[0])
	}

	for _, path := range existing {
		s.log.Debugf("Removing existing %s", path)

		if err := s.fs.Remove(path); err != nil {
			return errors.NewIOError(err, path)
		}
	}

	if s.completion != nil {
		if err := s.completion.Forget(hash); err != nil {
			return errors.NewIOError(err, job.Metadata.HexHash())
		}
	}

	return nil
}

// Execute drives the engine until every planned piece is verified, the
// engine fails, or ctx is cancelled. The returned snapshot is the final
// progress in every case.
func (s *Session) Execute(ctx context.Context, job *transfer.Job) (ledger.Snapshot, error) {
	budget := newFailureBudget(s.cfg.MaxPieceFailures)

	opts := append([]ledger.Option{ledger.WithEventHook(func(ev ledger.Event, err error) {
		metrics.ObserveEvent(ev, err)
		budget.observe(ev, err)
	})}, s.ledgerOpts...)

	l := ledger.New(job.Metadata, job.Selection, job.Plan, opts...)

	s.mu.Lock()
	s.ledger = l
	s.mu.Unlock()

	reporter := progress.New(l, append([]progress.Option{progress.WithInterval(s.cfg.PollInterval)}, s.reporterOpts...)...)

	if err := s.createEmptyFiles(job); err != nil {
		return l.Snapshot(), err
	}

	if l.IsComplete() {
		s.log.Infof("Nothing to fetch for %s", job.Metadata.Name)
		return reporter.Final(), s.deliver(job)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.engine.Start(runCtx, *job)
	if err != nil {
		return l.Snapshot(), engineError(err, job.Metadata.Name)
	}

	defer func() {
		if err := s.engine.Close(); err != nil {
			s.log.Warnf("Closing engine: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := l.Run(gctx, events); err != nil {
			return err
		}

		if gctx.Err() != nil {
			return gctx.Err()
		}

		if !l.IsComplete() {
			return errors.NewEngineError(ErrEngineStopped, job.Metadata.Name)
		}

		return nil
	})

	g.Go(func() error {
		return reporter.Run(gctx)
	})

	g.Go(func() error {
		return s.engine.Wait(gctx)
	})

	g.Go(func() error {
		select {
		case <-l.Done():
			return errComplete
		case err := <-budget.exceeded:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	final := reporter.Final()

	switch {
	case errors.Is(err, errComplete):
		s.log.Infof("Fetched %s of %s in %d pieces", humanize.IBytes(uint64(final.BytesVerified)), job.Metadata.Name, final.PiecesVerified)

		// The engine has to release the files before they move.
		if err := s.engine.Close(); err != nil {
			s.log.Warnf("Closing engine: %v", err)
		}

		return final, s.deliver(job)
	case err == nil:
		return final, errors.NewEngineError(ErrEngineStopped, job.Metadata.Name)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if _, ok := errors.CategoryOf(err); ok {
			return final, err
		}

		return final, errors.NewContextError(err, job.Metadata.Name)
	default:
		return final, engineError(err, job.Metadata.Name)
	}
}

// renameTarget returns the completed file and where it is moved to, or ok
// false when no rename was asked for.
func (s *Session) renameTarget(job *transfer.Job) (from, to string, ok bool) {
	if s.cfg.Name == "" || len(job.Selection.Files) != 1 {
		return "", "", false
	}

	from = transfer.TargetPath(job.Dir, job.Metadata, job.Selection.Files[0])
	to = filepath.Join(job.Dir, s.cfg.Name)

	return from, to, from != to
}

// prepareRenameTarget applies the overwrite policy to the rename destination.
func (s *Session) prepareRenameTarget(job *transfer.Job) error {
	_, to, ok := s.renameTarget(job)
	if !ok {
		return nil
	}

	exists, err := filesystem.FileExists(s.fs, to)
	if errors.Is(err, filesystem.ErrIsDirectory) {
		return errors.NewIOError(fmt.Errorf("%w: %s is a directory", ErrTargetExists, to), to)
	}

	if err != nil {
		return errors.NewIOError(err, to)
	}

	switch {
	case !exists:
		return nil
	case !s.cfg.Overwrite:
		return errors.NewIOError(ErrTargetExists, to)
	}

	s.log.Debugf("Removing existing %s", to)

	if err := s.fs.Remove(to); err != nil {
		return errors.NewIOError(err, to)
	}

	return nil
}

// deliver moves the completed file to its requested name.
func (s *Session) deliver(job *transfer.Job) error {
	from, to, ok := s.renameTarget(job)
	if !ok {
		return nil
	}

	if err := s.fs.Rename(from, to); err != nil {
		return errors.NewIOError(err, to)
	}

	s.log.Infof("Moved %s to %s", from, to)

	return nil
}

// createEmptyFiles writes the selected zero-length files, which no piece
// covers.
func (s *Session) createEmptyFiles(job *transfer.Job) error {
	for _, i := range job.Selection.Files {
		if job.Metadata.Files[i].Length != 0 {
			continue
		}

		path := transfer.TargetPath(job.Dir, job.Metadata, i)
		if err := s.fs.Touch(path); err != nil {
			return errors.NewIOError(err, path)
		}
	}

	return nil
}

// engineError keeps categorized errors and files the rest under ENGINE.
func engineError(err error, resource string) error {
	if _, ok := errors.CategoryOf(err); ok {
		return err
	}

	return errors.NewEngineError(err, resource)
}

// failureBudget turns too many integrity failures into a fatal error. A
// limit of zero never trips.
type failureBudget struct {
	limit    int64
	count    atomic.Int64
	exceeded chan error
}

func newFailureBudget(limit int) *failureBudget {
	return &failureBudget{
		limit:    int64(limit),
		exceeded: make(chan error, 1),
	}
}

func (b *failureBudget) observe(ev ledger.Event, err error) {
	if err != nil || ev.Kind != ledger.PieceFailed || b.limit <= 0 {
		return
	}

	if n := b.count.Add(1); n > b.limit {
		select {
		case b.exceeded <- errors.NewIntegrityError(fmt.Errorf("%w: %d failures", ErrTooManyFailures, n), ev.Index):
		default:
		}
	}
}
