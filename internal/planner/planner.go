// Package planner maps selected byte ranges onto the piece grid and orders
// the resulting pieces for the transfer engine.
package planner

import (
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/bitfield"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

// Plan returns the pieces covering every selected byte, ascending within each
// range and without duplicates. A piece shared by two ranges keeps the
// position of its first appearance.
func Plan(md *metainfo.Metadata, sel *selection.Set) []int {
	numPieces := md.NumPieces()
	seen := bitfield.New(numPieces)

	var plan []int

	for _, r := range sel.Ranges {
		if r.Len() <= 0 {
			continue
		}

		first := int(r.Start / md.PieceLength)
		last := int((r.End - 1) / md.PieceLength)

		for i := first; i <= last && i < numPieces; i++ {
			if seen.HasPiece(i) {
				continue
			}

			_ = seen.SetPiece(i)
			plan = append(plan, i)
		}
	}

	return plan
}

// Range returns the first and last piece index overlapping [start, end).
// ok is false for an empty interval.
func Range(md *metainfo.Metadata, start, end int64) (first, last int, ok bool) {
	if end <= start {
		return 0, 0, false
	}

	return int(start / md.PieceLength), int((end - 1) / md.PieceLength), true
}
