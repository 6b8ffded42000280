package anacrolix

import (
	"github.com/anacrolix/torrent"

	"github.com/NamanBalaji/tfetch/internal/planner"
)

func mapPriority(p planner.Priority) torrent.PiecePriority {
	switch p {
	case planner.PriorityNow:
		return torrent.PiecePriorityNow
	case planner.PriorityNext:
		return torrent.PiecePriorityNext
	case planner.PriorityReadahead:
		return torrent.PiecePriorityReadahead
	default:
		return torrent.PiecePriorityNormal
	}
}

// piecePriorities returns the priority for every piece of a torrent with n
// pieces. Pieces outside the tiers are never requested.
func piecePriorities(n int, tiers []planner.Tier) []torrent.PiecePriority {
	out := make([]torrent.PiecePriority, n)
	for i := range out {
		out[i] = torrent.PiecePriorityNone
	}

	for _, tier := range tiers {
		target := mapPriority(tier.Priority)
		for _, p := range tier.Pieces {
			if p >= 0 && p < n {
				out[p] = target
			}
		}
	}

	return out
}

func applyPriorities(t *torrent.Torrent, tiers []planner.Tier) {
	for i, prio := range piecePriorities(t.NumPieces(), tiers) {
		t.Piece(i).SetPriority(prio)
	}
}
