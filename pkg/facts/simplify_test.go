package facts

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-solli/borrowfacts/pkg/atom"
)

type pair struct{ from, to int }

func edgesOf(pairs ...pair) []Edge[atom.Point] {
	out := make([]Edge[atom.Point], len(pairs))
	for i, p := range pairs {
		out[i] = Edge[atom.Point]{From: atom.Point(p.from), To: atom.Point(p.to)}
	}
	return out
}

func factsWithEdges(pairs ...pair) *Facts {
	f := NewFacts()
	f.CFGEdge = edgesOf(pairs...)
	return f
}

var sortEdges = cmpopts.SortSlices(func(a, b Edge[atom.Point]) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
})

func assertEdges(t *testing.T, want []Edge[atom.Point], got []Edge[atom.Point]) {
	t.Helper()
	if diff := cmp.Diff(want, got, sortEdges, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("cfg_edge mismatch (-want +got):\n%s", diff)
	}
}

func TestSimplifyCFG_Reductions(t *testing.T) {
	tests := []struct {
		name    string
		input   []pair
		reduced []pair
	}{
		{
			name:    "short chain",
			input:   []pair{{0, 1}, {1, 2}},
			reduced: []pair{{0, 2}},
		},
		{
			name:    "long chain",
			input:   []pair{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}},
			reduced: []pair{{0, 6}},
		},
		{
			name:    "two chains",
			input:   []pair{{0, 1}, {1, 2}, {2, 3}, {4, 5}, {5, 6}},
			reduced: []pair{{0, 3}, {4, 6}},
		},
		{
			name:    "chain with fork",
			input:   []pair{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {2, 5}, {5, 6}},
			reduced: []pair{{0, 4}, {0, 6}},
		},
		{
			name: "chain with loop",
			input: []pair{
				{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9},
				{3, 10}, {10, 11}, {11, 8},
			},
			reduced: []pair{{0, 4}, {4, 9}, {0, 10}, {10, 9}},
		},
		{
			name:    "single edge is left alone",
			input:   []pair{{0, 1}},
			reduced: []pair{{0, 1}},
		},
		{
			name:    "simple cycle has no chain head",
			input:   []pair{{0, 1}, {1, 0}},
			reduced: []pair{{0, 1}, {1, 0}},
		},
		{
			name:    "self loop",
			input:   []pair{{0, 0}},
			reduced: []pair{{0, 0}},
		},
		{
			name:    "duplicated edge is not isolated",
			input:   []pair{{0, 1}, {0, 1}},
			reduced: []pair{{0, 1}, {0, 1}},
		},
		{
			name:    "chain closing into a loop",
			input:   []pair{{0, 1}, {1, 2}, {2, 3}, {3, 1}},
			reduced: []pair{{0, 1}, {1, 1}},
		},
		{
			name:    "empty graph",
			input:   nil,
			reduced: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := factsWithEdges(tt.input...)
			f.SimplifyCFG()
			assertEdges(t, edgesOf(tt.reduced...), f.CFGEdge)
		})
	}
}

func TestSimplifyCFG_Stats(t *testing.T) {
	f := factsWithEdges(pair{0, 1}, pair{1, 2}, pair{2, 3}, pair{4, 5})

	stats := f.SimplifyCFG()

	assert.Equal(t, 4, stats.EdgesBefore)
	assert.Equal(t, 2, stats.EdgesAfter)
	assert.Equal(t, 2, stats.Chains)
	assert.Equal(t, 2, stats.Collapses)
	// (0,3) and (4,5) each end up as a whole component and cannot be merged.
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Breaks)
}

func TestSimplifyCFG_FactBreaksChain(t *testing.T) {
	chain := []pair{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}}
	split := edgesOf(pair{0, 3}, pair{3, 6})

	tests := []struct {
		name string
		add  func(f *Facts)
	}{
		{"killed", func(f *Facts) { f.AddKilled(atom.Loan(0), 3) }},
		{"outlives", func(f *Facts) { f.AddOutlives(atom.Region(0), atom.Region(1), 3) }},
		{"invalidates", func(f *Facts) { f.AddInvalidates(3, atom.Loan(0)) }},
		{"region live", func(f *Facts) { f.AddRegionLiveAt(atom.Region(0), 3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := factsWithEdges(chain...)
			tt.add(f)

			stats := f.SimplifyCFG()

			assertEdges(t, split, f.CFGEdge)
			assert.Equal(t, 2, stats.Breaks)
			assert.Equal(t, 4, stats.Collapses)
		})
	}
}

func TestSimplifyCFG_FactsAtBreakPointSurvive(t *testing.T) {
	f := factsWithEdges(pair{0, 1}, pair{1, 2}, pair{2, 3})
	f.AddKilled(atom.Loan(7), 1)

	f.SimplifyCFG()

	assertEdges(t, edgesOf(pair{0, 1}, pair{1, 3}), f.CFGEdge)
	assert.Equal(t, []atom.Loan{7}, f.KilledAt(1))
}

func TestSimplifyCFG_LiveRegionsComparedAsSets(t *testing.T) {
	f := factsWithEdges(pair{0, 1}, pair{1, 2}, pair{2, 3}, pair{3, 4}, pair{4, 5}, pair{5, 6})
	f.AddRegionLiveAt(atom.Region(0), 3)
	f.AddRegionLiveAt(atom.Region(1), 3)
	f.AddRegionLiveAt(atom.Region(1), 4)
	f.AddRegionLiveAt(atom.Region(0), 4)
	f.AddRegionLiveAt(atom.Region(0), 4)

	f.SimplifyCFG()

	assertEdges(t, edgesOf(pair{0, 3}, pair{3, 6}), f.CFGEdge)
	assert.ElementsMatch(t, []atom.Region{0, 1}, f.LiveRegionsAt(3))
	assert.Empty(t, f.LiveRegionsAt(4), "facts of the merged point are dropped")
}

func TestSimplifyCFG_KeepFirstDropsFactsOfSecond(t *testing.T) {
	f := factsWithEdges(pair{0, 1}, pair{1, 2})
	f.AddBorrowRegion(atom.Region(0), atom.Loan(0), 0)
	f.AddBorrowRegion(atom.Region(1), atom.Loan(1), 1)
	f.AddUniversalRegion(atom.Region(5))

	f.SimplifyCFG()

	// (0,1) collapses keeping 0 because 1 still has an outgoing edge.
	assertEdges(t, edgesOf(pair{0, 2}), f.CFGEdge)
	assert.Len(t, f.BorrowRegionsAt(0), 1)
	assert.Empty(t, f.BorrowRegionsAt(1))
	assert.Equal(t, []atom.Region{5}, f.UniversalRegion, "universal_region is never touched")
}

func TestSimplifyCFG_KeepSecondWhenTargetIsEndpoint(t *testing.T) {
	// 1 -> 2 is the tail of a chain hanging off a join at 1.
	f := factsWithEdges(pair{0, 1}, pair{5, 1}, pair{1, 2})
	f.AddBorrowRegion(atom.Region(0), atom.Loan(0), 1)
	f.AddBorrowRegion(atom.Region(0), atom.Loan(1), 2)

	f.SimplifyCFG()

	assertEdges(t, edgesOf(pair{0, 2}, pair{5, 2}), f.CFGEdge)
	assert.Empty(t, f.BorrowRegionsAt(1))
	assert.Len(t, f.BorrowRegionsAt(2), 1)
}

func TestIsEdgeCollapsible(t *testing.T) {
	f := NewFacts()
	f.AddRegionLiveAt(atom.Region(1), 10)
	f.AddRegionLiveAt(atom.Region(1), 11)
	f.AddRegionLiveAt(atom.Region(2), 12)
	f.AddKilled(atom.Loan(0), 13)
	f.AddBorrowRegion(atom.Region(1), atom.Loan(0), 14)

	assert.True(t, f.IsEdgeCollapsible(0, 1), "points without facts")
	assert.True(t, f.IsEdgeCollapsible(10, 11), "same live regions")
	assert.False(t, f.IsEdgeCollapsible(11, 12), "different live regions")
	assert.False(t, f.IsEdgeCollapsible(10, 0), "live on one side only")
	assert.False(t, f.IsEdgeCollapsible(0, 13), "kill on the target")
	assert.False(t, f.IsEdgeCollapsible(13, 0), "kill on the source")
	assert.True(t, f.IsEdgeCollapsible(0, 14), "borrow_region does not gate")
}

func TestSimplifyCFG_FactOnlyPointsUntouched(t *testing.T) {
	f := factsWithEdges(pair{0, 1}, pair{1, 2})
	f.AddKilled(atom.Loan(3), 42)
	f.AddRegionLiveAt(atom.Region(0), 42)

	f.SimplifyCFG()

	assert.Equal(t, []atom.Loan{3}, f.KilledAt(42))
	assert.Equal(t, []atom.Region{0}, f.LiveRegionsAt(42))
}

// randomFacts builds a graph with a bias towards long straight runs so that
// chains are common, then sprinkles facts over a few points.
func randomFacts(rng *rand.Rand, points int) *Facts {
	f := NewFacts()
	for p := 0; p < points-1; p++ {
		if rng.Intn(4) != 0 {
			f.AddCFGEdge(atom.Point(p), atom.Point(p+1))
		}
		if rng.Intn(8) == 0 {
			f.AddCFGEdge(atom.Point(p), atom.Point(rng.Intn(points)))
		}
	}
	for p := 0; p < points; p++ {
		switch rng.Intn(12) {
		case 0:
			f.AddKilled(atom.Loan(rng.Intn(3)), atom.Point(p))
		case 1:
			f.AddOutlives(atom.Region(rng.Intn(3)), atom.Region(rng.Intn(3)), atom.Point(p))
		case 2:
			f.AddInvalidates(atom.Point(p), atom.Loan(rng.Intn(3)))
		case 3, 4:
			f.AddRegionLiveAt(atom.Region(rng.Intn(2)), atom.Point(p))
		case 5:
			f.AddBorrowRegion(atom.Region(rng.Intn(3)), atom.Loan(rng.Intn(3)), atom.Point(p))
		}
	}
	return f
}

func TestSimplifyCFG_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(20261018))

	for i := 0; i < 200; i++ {
		input := randomFacts(rng, 5+rng.Intn(40))
		once := input.Clone()
		stats := once.SimplifyCFG()

		require.LessOrEqual(t, len(once.CFGEdge), len(input.CFGEdge), "edge count must not grow")
		require.Equal(t, len(input.CFGEdge)-stats.Collapses, len(once.CFGEdge))

		// Kills, outlives and invalidations pin their points, so they are
		// never merged away.
		before, after := input.Counts(), once.Counts()
		require.Equal(t, before.Killed, after.Killed)
		require.Equal(t, before.Outlives, after.Outlives)
		require.Equal(t, before.Invalidates, after.Invalidates)
		require.Equal(t, before.UniversalRegion, after.UniversalRegion)

		twice := once.Clone()
		second := twice.SimplifyCFG()
		require.Zero(t, second.Collapses, "second pass must be a no-op")
		assertEdges(t, once.CFGEdge, twice.CFGEdge)

		// Reachability between surviving points is preserved.
		survivors := make(map[atom.Point]bool)
		for _, e := range once.CFGEdge {
			survivors[e.From] = true
			survivors[e.To] = true
		}
		for u := range survivors {
			reachedBefore := input.Reachable(u)
			reachedAfter := once.Reachable(u)
			for v := range survivors {
				if reachedBefore[v] && v != u {
					require.Truef(t, reachedAfter[v], "iteration %d: %v no longer reaches %v", i, u, v)
				}
			}
		}
	}
}

type blockID uint32

func (b blockID) Index() int { return int(b) }

func TestSimplifyCFG_CustomAtomKinds(t *testing.T) {
	f := New[atom.Region, atom.Loan, blockID]()
	for i := blockID(0); i < 4; i++ {
		f.AddCFGEdge(i, i+1)
	}
	f.AddKilled(atom.Loan(0), blockID(2))

	stats := f.SimplifyCFG()

	assert.Equal(t, 2, stats.Collapses)
	assert.Equal(t, 2, stats.Breaks)
	want := []Edge[blockID]{{From: 0, To: 2}, {From: 2, To: 4}}
	if diff := cmp.Diff(want, f.CFGEdge, cmpopts.SortSlices(func(a, b Edge[blockID]) bool {
		return a.From < b.From
	})); diff != "" {
		t.Errorf("cfg_edge mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, f.Killed[blockID(2)], 1)
}
