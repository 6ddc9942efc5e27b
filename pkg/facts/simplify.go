package facts

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/dan-solli/borrowfacts/pkg/atom"
)

// SimplifyStats describes one SimplifyCFG pass.
type SimplifyStats struct {
	EdgesBefore int `json:"edges_before"`
	EdgesAfter  int `json:"edges_after"`
	Chains      int `json:"chains"`
	// Collapses counts edges merged away.
	Collapses int `json:"collapses"`
	// Breaks counts chain links that carried a distinguishing fact.
	Breaks int `json:"breaks"`
	// Skipped counts collapsible links left alone because the edge was both
	// the only way out of its source and the only way into its target.
	Skipped int `json:"skipped"`
}

// SimplifyCFG shrinks cfg_edge by merging adjacent points on isolated chains
// whenever no fact tells them apart, rewriting the point-indexed relations to
// match. Running it again on its own output changes nothing.
//
// f must not be used concurrently while SimplifyCFG runs.
func (f *AllFacts[R, L, P]) SimplifyCFG() SimplifyStats {
	stats := SimplifyStats{EdgesBefore: len(f.CFGEdge)}

	chains := f.IsolatedChains()
	stats.Chains = len(chains)
	for _, chain := range chains {
		f.simplifyChain(chain, &stats)
	}

	stats.EdgesAfter = len(f.CFGEdge)
	return stats
}

// simplifyChain folds every collapsible link of chain into the current
// anchor. A link that cannot be collapsed moves the anchor forward.
func (f *AllFacts[R, L, P]) simplifyChain(chain []P, stats *SimplifyStats) {
	if len(chain) < 2 {
		return
	}

	anchor := chain[0]
	for _, next := range chain[1:] {
		if !f.IsEdgeCollapsible(anchor, next) {
			stats.Breaks++
			anchor = next
			continue
		}

		if f.collapseEdge(anchor, next) {
			stats.Collapses++
		} else {
			stats.Skipped++
		}
	}
}

// IsEdgeCollapsible reports whether p and q are indistinguishable to the
// solver: the same regions are live at both, and neither point carries a
// kill, an outlives constraint or an invalidation.
//
// borrow_region and universal_region are not consulted.
func (f *AllFacts[R, L, P]) IsEdgeCollapsible(p, q P) bool {
	return f.sameLiveRegions(p, q) &&
		len(f.Killed[p]) == 0 && len(f.Killed[q]) == 0 &&
		len(f.Outlives[p]) == 0 && len(f.Outlives[q]) == 0 &&
		len(f.Invalidates[p]) == 0 && len(f.Invalidates[q]) == 0
}

func (f *AllFacts[R, L, P]) sameLiveRegions(p, q P) bool {
	atP, atQ := f.RegionLiveAt[p], f.RegionLiveAt[q]
	if len(atP) == 0 || len(atQ) == 0 {
		return len(atP) == len(atQ)
	}
	return set.From(atP).Equal(set.From(atQ))
}

// pointMerge says which point survives a collapse and which one disappears.
type pointMerge[P atom.Atom] struct {
	edge      Edge[P]
	survivor  P
	disappear P
}

// collapseEdge merges the endpoints of p -> q. The survivor is whichever
// side is still attached to the rest of the graph: p when q has outgoing
// edges, otherwise q when p has incoming edges. When neither holds the edge
// is the whole component and it is left as is; the return value is false.
//
// Endpoint checks run against the live edge list. p != q on any chain, so the
// edge p -> q itself never affects them.
func (f *AllFacts[R, L, P]) collapseEdge(p, q P) bool {
	edge := Edge[P]{From: p, To: q}

	var merge pointMerge[P]
	switch {
	case !f.isEndpoint(q):
		merge = pointMerge[P]{edge: edge, survivor: p, disappear: q}
	case !f.isStartpoint(p):
		merge = pointMerge[P]{edge: edge, survivor: q, disappear: p}
	default:
		return false
	}

	f.applyMerge(merge)
	return true
}

// applyMerge drops the facts of the disappearing point, removes the merged
// edge and renames the disappearing point to the survivor on every other
// edge. The rule is fixed before the edge list is touched.
func (f *AllFacts[R, L, P]) applyMerge(m pointMerge[P]) {
	f.removePoint(m.disappear)

	kept := f.CFGEdge[:0]
	for _, e := range f.CFGEdge {
		if e == m.edge {
			continue
		}
		if e.From == m.disappear {
			e.From = m.survivor
		}
		if e.To == m.disappear {
			e.To = m.survivor
		}
		kept = append(kept, e)
	}
	clear(f.CFGEdge[len(kept):])
	f.CFGEdge = kept
}
