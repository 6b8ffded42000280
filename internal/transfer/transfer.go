// Package transfer defines the boundary between a session and the engine that
// moves piece data over the wire and onto disk.
package transfer

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrInvalidJob     = errors.New("invalid transfer job")
)

// Engine fetches the planned pieces of one torrent.
//
// Start returns a channel of piece events that is closed when the engine
// stops. Wait blocks until the engine fails, is closed, or ctx is done; it
// returns nil after Close.
type Engine interface {
	Start(ctx context.Context, job Job) (<-chan ledger.Event, error)
	Wait(ctx context.Context) error
	Close() error
}

// Job is everything an engine needs to fetch a selection.
type Job struct {
	Metadata  *metainfo.Metadata
	Selection *selection.Set
	Plan      []int
	Tiers     []planner.Tier
	Dir       string
}

// Validate checks that the job can be handed to an engine.
func (j Job) Validate() error {
	switch {
	case j.Metadata == nil:
		return errors.Join(ErrInvalidJob, errors.New("missing metadata"))
	case j.Selection == nil:
		return errors.Join(ErrInvalidJob, errors.New("missing selection"))
	case j.Dir == "":
		return errors.Join(ErrInvalidJob, errors.New("missing output directory"))
	}

	n := j.Metadata.NumPieces()
	for _, p := range j.Plan {
		if p < 0 || p >= n {
			return errors.Join(ErrInvalidJob, errors.New("planned piece out of range"))
		}
	}

	return nil
}

// TargetPath returns where file i of the torrent is written under dir.
// Multi-file torrents live in a directory named after the torrent. A
// single-file torrent is written under its file name, which falls back to the
// hex info hash when the torrent has no name.
func TargetPath(dir string, md *metainfo.Metadata, i int) string {
	if !md.MultiFile {
		return filepath.Join(dir, md.Files[0].DisplayPath())
	}

	parts := append([]string{dir, md.Name}, md.Files[i].Path...)

	return filepath.Join(parts...)
}

// Targets returns the output paths of the selected files.
func (j Job) Targets() []string {
	out := make([]string, 0, len(j.Selection.Files))
	for _, i := range j.Selection.Files {
		out = append(out, TargetPath(j.Dir, j.Metadata, i))
	}

	return out
}
