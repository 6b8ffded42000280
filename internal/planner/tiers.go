package planner

import (
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

// Priority ranks planned pieces for the transfer engine. Higher values are
// fetched first.
type Priority int

const (
	PriorityNormal Priority = iota + 1
	PriorityReadahead
	PriorityNext
	PriorityNow
)

func (p Priority) String() string {
	switch p {
	case PriorityNow:
		return "now"
	case PriorityNext:
		return "next"
	case PriorityReadahead:
		return "readahead"
	case PriorityNormal:
		return "normal"
	default:
		return "none"
	}
}

// Tier is a group of planned pieces sharing a priority, in plan order.
type Tier struct {
	Priority Priority
	Pieces   []int
}

// Tiers splits plan by position inside each selected file: the file's first
// piece is PriorityNow, the one after it PriorityNext, the following
// readahead pieces PriorityReadahead and everything else PriorityNormal.
// A piece shared by two files takes the higher priority. Tiers are returned
// highest priority first and empty tiers are omitted.
func Tiers(md *metainfo.Metadata, sel *selection.Set, plan []int, readahead int) []Tier {
	if readahead < 0 {
		readahead = 0
	}

	best := make(map[int]Priority, len(plan))
	for _, idx := range plan {
		best[idx] = PriorityNormal
	}

	for _, fi := range sel.Files {
		f := md.Files[fi]

		first, last, ok := Range(md, f.Offset, f.End())
		if !ok {
			continue
		}

		for i := first; i <= last; i++ {
			cur, planned := best[i]
			if !planned {
				continue
			}

			var p Priority

			switch pos := i - first; {
			case pos == 0:
				p = PriorityNow
			case pos == 1:
				p = PriorityNext
			case pos <= 1+readahead:
				p = PriorityReadahead
			default:
				p = PriorityNormal
			}

			if p > cur {
				best[i] = p
			}
		}
	}

	tiers := make([]Tier, 0, 4)

	for p := PriorityNow; p >= PriorityNormal; p-- {
		var pieces []int

		for _, idx := range plan {
			if best[idx] == p {
				pieces = append(pieces, idx)
			}
		}

		if len(pieces) > 0 {
			tiers = append(tiers, Tier{Priority: p, Pieces: pieces})
		}
	}

	return tiers
}
