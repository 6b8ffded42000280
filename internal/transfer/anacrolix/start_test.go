package anacrolix

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	btmeta "github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tfetch/internal/config"
	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/repository"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/internal/transfer"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo/metainfotest"
)

// offline keeps the client from talking to anyone.
func offline() *config.TorrentConfig {
	return &config.TorrentConfig{
		DisableDHT:      true,
		DisablePEX:      true,
		DisableTrackers: true,
		DisableIPv6:     true,
	}
}

var booksContent = []metainfotest.Content{
	{Path: "a.bin", Data: bytes.Repeat([]byte("a"), 20000)},
	{Path: "b.bin", Data: bytes.Repeat([]byte("b"), 20000)},
}

// booksJob selects b.bin, which covers pieces 1 and 2 of three.
func booksJob(t *testing.T, dir string) transfer.Job {
	t.Helper()

	md, err := metainfo.Decode(metainfotest.EncodeContent(t, "books", 16384, booksContent...))
	require.NoError(t, err)

	sel, err := selection.Select(md, `b\.bin`)
	require.NoError(t, err)

	plan := planner.Plan(md, sel)
	require.Equal(t, []int{1, 2}, plan)

	return transfer.Job{
		Metadata:  md,
		Selection: sel,
		Plan:      plan,
		Tiers:     planner.Tiers(md, sel, plan, 4),
		Dir:       dir,
	}
}

func openCompletion(t *testing.T) *repository.BboltRepository {
	t.Helper()

	repo, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "completion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
	done   chan struct{}
}

func record(out <-chan ledger.Event) *recorder {
	r := &recorder{done: make(chan struct{})}

	go func() {
		defer close(r.done)

		for ev := range out {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()

	return r
}

func (r *recorder) snapshot() []ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ledger.Event(nil), r.events...)
}

func (r *recorder) verified() []int {
	var out []int

	for _, ev := range r.snapshot() {
		if ev.Kind == ledger.PieceVerified {
			out = append(out, ev.Index)
		}
	}

	sort.Ints(out)

	return out
}

func (r *recorder) waitClosed(t *testing.T) {
	t.Helper()

	select {
	case <-r.done:
	case <-time.After(10 * time.Second):
		t.Fatal("event channel still open after Close")
	}
}

func TestEngineFreshStart(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a torrent client")
	}

	job := booksJob(t, t.TempDir())
	e := New(offline(), openCompletion(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := e.Start(ctx, job)
	require.NoError(t, err)

	rec := record(out)

	_, err = e.Start(ctx, job)
	assert.ErrorIs(t, err, transfer.ErrAlreadyStarted)

	// The client hashes every piece of unknown completion once at start.
	// With nothing on disk those checks fail and the store learns the
	// pieces are missing.
	require.Eventually(t, func() bool {
		for _, i := range job.Plan {
			st := e.t.PieceState(i)
			if st.Checking || !st.Ok {
				return false
			}
		}

		return true
	}, 10*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, e.Close())
	rec.waitClosed(t)

	assert.Empty(t, rec.snapshot(), "no peer ever delivered data")
}

func TestEngineResumesFromDisk(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a torrent client")
	}

	dir := t.TempDir()
	job := booksJob(t, dir)

	for i, c := range booksContent {
		path := transfer.TargetPath(dir, job.Metadata, i)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, c.Data, 0o644))
	}

	e := New(offline(), openCompletion(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := e.Start(ctx, job)
	require.NoError(t, err)

	rec := record(out)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(job.Plan, rec.verified())
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, e.Close())
	rec.waitClosed(t)

	for _, ev := range rec.snapshot() {
		assert.Equal(t, ledger.PieceVerified, ev.Kind, "piece %d", ev.Index)
	}

	assert.Equal(t, job.Plan, rec.verified())
}

func TestEngineRejectsMismatchedDescriptor(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a torrent client")
	}

	job := booksJob(t, t.TempDir())

	other, err := metainfo.Decode(metainfotest.EncodeContent(t, "other", 16384, booksContent...))
	require.NoError(t, err)

	md := *job.Metadata
	md.Raw = other.Raw
	job.Metadata = &md

	e := New(offline(), storage.NewMapPieceCompletion())
	defer e.Close()

	_, err = e.Start(context.Background(), job)
	assert.ErrorIs(t, err, ErrInfoMismatch)
	assert.ErrorIs(t, err, errors.ErrEngineFatal)
}

func TestEngineStartAfterClose(t *testing.T) {
	e := New(offline(), storage.NewMapPieceCompletion())
	require.NoError(t, e.Close())

	_, err := e.Start(context.Background(), booksJob(t, t.TempDir()))
	assert.ErrorIs(t, err, ErrEngineClosed)
}

// The storage layout has to agree with the paths the session checks and
// creates.
func TestStorageLayoutMatchesTargets(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"multi file", metainfotest.Encode(t, "books", 16384,
			metainfotest.File{Path: "x/a.pdf", Length: 25000},
			metainfotest.File{Path: "b.epub", Length: 15000},
		)},
		{"single file", metainfotest.EncodeSingle(t, "one.iso", 16384, 40000)},
		{"unnamed single file", metainfotest.EncodeSingle(t, "", 16384, 40000)},
	}

	base := filepath.Join(string(filepath.Separator), "out")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := metainfo.Decode(tt.data)
			require.NoError(t, err)

			mi, err := btmeta.Load(bytes.NewReader(tt.data))
			require.NoError(t, err)

			info, err := mi.UnmarshalInfo()
			require.NoError(t, err)

			dir := torrentDir(base, &info, mi.HashInfoBytes())

			for i, fi := range info.UpvertedFiles() {
				got := filepath.Join(dir, filePath(storage.FilePathMakerOpts{Info: &info, File: &fi}))
				assert.Equal(t, transfer.TargetPath(base, md, i), got)
			}
		})
	}
}
