package anacrolix

import (
	"github.com/anacrolix/torrent"

	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/pkg/torrent/bitfield"
)

type trackState uint8

const (
	stateIdle trackState = iota
	stateInitialCheck
	stateRequested
	stateChecking
	stateVerified
)

// tracker turns anacrolix piece state changes into ledger events. It keeps
// the last translated state per planned piece so repeated notifications for
// the same state produce one event.
//
// A hash check of a piece nothing was downloaded for is the client checking
// data already on disk. It yields Verified when the data is good and nothing
// otherwise. Only a check that follows a download can fail a piece.
type tracker struct {
	planned *bitfield.Bitfield
	states  map[int]trackState
}

func newTracker(numPieces int, plan []int) *tracker {
	planned := bitfield.New(numPieces)
	for _, p := range plan {
		_ = planned.SetPiece(p)
	}

	return &tracker{
		planned: planned,
		states:  make(map[int]trackState, len(plan)),
	}
}

// translate returns the events implied by a new state of piece index, oldest
// first. Unplanned pieces produce nothing.
func (tr *tracker) translate(index int, st torrent.PieceState) []ledger.Event {
	if !tr.planned.HasPiece(index) {
		return nil
	}

	prev := tr.states[index]
	if prev == stateVerified {
		return nil
	}

	var out []ledger.Event

	request := func() {
		if prev == stateIdle || prev == stateInitialCheck {
			out = append(out, ledger.Event{Kind: ledger.PieceRequested, Index: index})
		}
	}

	switch {
	case st.Complete && st.Ok:
		tr.states[index] = stateVerified
		out = append(out, ledger.Event{Kind: ledger.PieceVerified, Index: index})
	case st.Checking && (prev == stateIdle || prev == stateInitialCheck) && !st.Partial:
		tr.states[index] = stateInitialCheck
	case st.Checking:
		request()
		tr.states[index] = stateChecking
	case prev == stateChecking && st.Ok:
		tr.states[index] = stateIdle
		out = append(out, ledger.Event{Kind: ledger.PieceFailed, Index: index, Err: errHashMismatch})
	case st.Partial:
		request()
		tr.states[index] = stateRequested
	case prev == stateInitialCheck:
		tr.states[index] = stateIdle
	}

	return out
}
