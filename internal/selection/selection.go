// Package selection chooses which files of a torrent to materialize and
// derives the byte ranges they occupy in the torrent's global byte space.
package selection

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

var (
	ErrInvalidPattern = errors.New("invalid selection pattern")
	ErrNoFilesMatched = errors.New("no files matched")
)

// Range is a half-open byte interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Overlap returns how many bytes of [start, end) fall inside r.
func (r Range) Overlap(start, end int64) int64 {
	lo := max(r.Start, start)
	hi := min(r.End, end)

	if hi <= lo {
		return 0
	}

	return hi - lo
}

// Set is the result of a selection. It is read-only once built.
type Set struct {
	// Files holds the selected file indices in ascending order.
	Files []int
	// Ranges are ordered, non-overlapping and never adjacent.
	Ranges []Range
	// Pattern is the expression the set was built from; empty means every file.
	Pattern string
}

// Bytes returns the total number of selected bytes.
func (s *Set) Bytes() int64 {
	var n int64
	for _, r := range s.Ranges {
		n += r.Len()
	}

	return n
}

// Contains reports whether file index i was selected.
func (s *Set) Contains(i int) bool {
	lo, hi := 0, len(s.Files)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case s.Files[mid] == i:
			return true
		case s.Files[mid] < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}

	return false
}

// Overlap returns the number of selected bytes inside [start, end).
func (s *Set) Overlap(start, end int64) int64 {
	var n int64
	for _, r := range s.Ranges {
		if r.Start >= end {
			break
		}

		n += r.Overlap(start, end)
	}

	return n
}

// MatchPath returns the string a pattern is matched against for file i:
// the in-torrent path for multi-file torrents and the file name otherwise.
func MatchPath(md *metainfo.Metadata, i int) string {
	return md.Files[i].DisplayPath()
}

// Select returns the files whose path fully matches pattern. An empty pattern
// selects every file.
func Select(md *metainfo.Metadata, pattern string) (*Set, error) {
	var re *regexp.Regexp

	if pattern != "" {
		var err error

		re, err = regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
	}

	set := &Set{Pattern: pattern}

	for i, f := range md.Files {
		if re != nil && !re.MatchString(MatchPath(md, i)) {
			continue
		}

		set.Files = append(set.Files, i)

		if f.Length == 0 {
			continue
		}

		r := Range{Start: f.Offset, End: f.End()}
		if n := len(set.Ranges); n > 0 && set.Ranges[n-1].End == r.Start {
			set.Ranges[n-1].End = r.End
			continue
		}

		set.Ranges = append(set.Ranges, r)
	}

	if len(set.Files) == 0 {
		return nil, fmt.Errorf("%w: pattern %q", ErrNoFilesMatched, pattern)
	}

	return set, nil
}
