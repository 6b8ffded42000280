package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo/metainfotest"
)

func TestTiers(t *testing.T) {
	md := metainfotest.New(t, "t", 10,
		metainfotest.File{Path: "a", Length: 75},
		metainfotest.File{Path: "b", Length: 25},
	)

	sel, err := selection.Select(md, "")
	require.NoError(t, err)

	plan := planner.Plan(md, sel)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, plan)

	tiers := planner.Tiers(md, sel, plan, 2)

	// File a spans pieces 0-7, file b spans 7-9.
	assert.Equal(t, []planner.Tier{
		{Priority: planner.PriorityNow, Pieces: []int{0, 7}},
		{Priority: planner.PriorityNext, Pieces: []int{1, 8}},
		{Priority: planner.PriorityReadahead, Pieces: []int{2, 3, 9}},
		{Priority: planner.PriorityNormal, Pieces: []int{4, 5, 6}},
	}, tiers)
}

func TestTiersCoverPlanExactlyOnce(t *testing.T) {
	md := metainfotest.New(t, "t", 16384,
		metainfotest.File{Path: "a.pdf", Length: 25000},
		metainfotest.File{Path: "b.epub", Length: 15000},
	)

	sel, err := selection.Select(md, `b\.epub`)
	require.NoError(t, err)

	plan := planner.Plan(md, sel)
	tiers := planner.Tiers(md, sel, plan, -1)

	var got []int
	for _, tier := range tiers {
		got = append(got, tier.Pieces...)
	}

	assert.ElementsMatch(t, plan, got)
	assert.Equal(t, planner.PriorityNow, tiers[0].Priority)
	assert.Equal(t, []int{1}, tiers[0].Pieces)
}

func TestTiersEmptyPlan(t *testing.T) {
	md := metainfotest.New(t, "t", 10, metainfotest.File{Path: "a", Length: 0}, metainfotest.File{Path: "b", Length: 5})

	sel, err := selection.Select(md, "a")
	require.NoError(t, err)

	assert.Empty(t, planner.Tiers(md, sel, planner.Plan(md, sel), 4))
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "now", planner.PriorityNow.String())
	assert.Equal(t, "next", planner.PriorityNext.String())
	assert.Equal(t, "readahead", planner.PriorityReadahead.String())
	assert.Equal(t, "normal", planner.PriorityNormal.String())
	assert.Equal(t, "none", planner.Priority(0).String())
}
