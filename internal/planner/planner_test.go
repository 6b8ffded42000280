package planner_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo/metainfotest"
)

func TestPlanScenario(t *testing.T) {
	md := metainfotest.New(t, "books", 16384,
		metainfotest.File{Path: "a.pdf", Length: 25000},
		metainfotest.File{Path: "b.epub", Length: 15000},
	)
	require.Equal(t, 3, md.NumPieces())

	sel, err := selection.Select(md, `b\.epub`)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, planner.Plan(md, sel))

	sel, err = selection.Select(md, `a\.pdf`)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, planner.Plan(md, sel))
}

func TestPlanOrderAndDedup(t *testing.T) {
	tests := []struct {
		name   string
		ranges []selection.Range
		want   []int
	}{
		{"single piece", []selection.Range{{Start: 0, End: 1}}, []int{0}},
		{"exact piece boundary", []selection.Range{{Start: 100, End: 200}}, []int{1}},
		{"shared piece once", []selection.Range{{Start: 50, End: 150}, {Start: 180, End: 350}}, []int{0, 1, 2, 3}},
		{"first seen order kept", []selection.Range{{Start: 300, End: 420}, {Start: 0, End: 310}}, []int{3, 4, 0, 1, 2}},
		{"empty range ignored", []selection.Range{{Start: 40, End: 40}, {Start: 90, End: 110}}, []int{0, 1}},
	}

	// Ranges are handed in directly so out-of-order inputs can be exercised.
	md := metainfotest.New(t, "t", 100, metainfotest.File{Path: "x", Length: 500})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planner.Plan(md, &selection.Set{Ranges: tt.ranges})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanEmptySelection(t *testing.T) {
	md := metainfotest.New(t, "t", 16,
		metainfotest.File{Path: "empty", Length: 0},
		metainfotest.File{Path: "data", Length: 64},
	)

	sel, err := selection.Select(md, "empty")
	require.NoError(t, err)
	assert.Empty(t, planner.Plan(md, sel))
}

func TestPlanProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := range 200 {
		pieceLength := int64(1 + rng.IntN(64))
		numFiles := 1 + rng.IntN(8)

		files := make([]metainfotest.File, numFiles)
		for i := range files {
			files[i] = metainfotest.File{Path: fmt.Sprintf("f%d", i), Length: int64(rng.IntN(300))}
		}

		var total int64
		for _, f := range files {
			total += f.Length
		}

		if total == 0 {
			files[0].Length = 1
		}

		md := metainfotest.New(t, "prop", pieceLength, files...)

		sel, err := selection.Select(md, fmt.Sprintf("f[%d-%d]", rng.IntN(numFiles), numFiles-1))
		require.NoError(t, err, "round %d", round)

		plan := planner.Plan(md, sel)
		assert.Equal(t, plan, planner.Plan(md, sel), "plan must be idempotent")

		checkCoverage(t, md, sel, plan)
	}
}

func checkCoverage(t *testing.T, md *metainfo.Metadata, sel *selection.Set, plan []int) {
	t.Helper()

	planned := make(map[int]bool, len(plan))
	for _, idx := range plan {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, md.NumPieces())
		require.False(t, planned[idx], "piece %d planned twice", idx)
		planned[idx] = true
	}

	for _, r := range sel.Ranges {
		for b := r.Start; b < r.End; b++ {
			require.True(t, planned[int(b/md.PieceLength)], "byte %d not covered", b)
		}
	}
}

func TestRange(t *testing.T) {
	md := metainfotest.New(t, "t", 10, metainfotest.File{Path: "x", Length: 100})

	first, last, ok := planner.Range(md, 5, 25)
	assert.True(t, ok)
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, last)

	_, _, ok = planner.Range(md, 30, 30)
	assert.False(t, ok)
}
