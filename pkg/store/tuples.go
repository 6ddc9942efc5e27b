package store

import (
	"fmt"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// tuple is one relation row with its columns as atom indexes, in the same
// column order as the relation's fact file.
type tuple struct {
	relation string
	cols     []int
}

// encodeTuples flattens f into rows. Point-indexed relations come out in
// point order so saved sets are stable.
func encodeTuples(f *facts.Facts) []tuple {
	var out []tuple
	add := func(relation string, cols ...int) {
		out = append(out, tuple{relation: relation, cols: cols})
	}

	for _, p := range facts.SortedKeys(f.BorrowRegion) {
		for _, rl := range f.BorrowRegion[p] {
			add("borrow_region", rl.Region.Index(), rl.Loan.Index(), p.Index())
		}
	}
	for _, r := range f.UniversalRegion {
		add("universal_region", r.Index())
	}
	for _, e := range f.CFGEdge {
		add("cfg_edge", e.From.Index(), e.To.Index())
	}
	for _, p := range facts.SortedKeys(f.Killed) {
		for _, l := range f.Killed[p] {
			add("killed", l.Index(), p.Index())
		}
	}
	for _, p := range facts.SortedKeys(f.Outlives) {
		for _, o := range f.Outlives[p] {
			add("outlives", o.Longer.Index(), o.Shorter.Index(), p.Index())
		}
	}
	for _, p := range facts.SortedKeys(f.RegionLiveAt) {
		for _, r := range f.RegionLiveAt[p] {
			add("region_live_at", r.Index(), p.Index())
		}
	}
	for _, p := range facts.SortedKeys(f.Invalidates) {
		for _, l := range f.Invalidates[p] {
			add("invalidates", p.Index(), l.Index())
		}
	}
	return out
}

// decodeTuple adds one stored row back into f.
func decodeTuple(f *facts.Facts, t tuple) error {
	c := t.cols
	need := map[string]int{
		"borrow_region": 3, "universal_region": 1, "cfg_edge": 2, "killed": 2,
		"outlives": 3, "region_live_at": 2, "invalidates": 2,
	}[t.relation]
	if need == 0 {
		return fmt.Errorf("unknown relation %q", t.relation)
	}
	if len(c) < need {
		return fmt.Errorf("relation %s: expected %d columns, got %d", t.relation, need, len(c))
	}

	switch t.relation {
	case "borrow_region":
		f.AddBorrowRegion(atom.RegionFromIndex(c[0]), atom.LoanFromIndex(c[1]), atom.PointFromIndex(c[2]))
	case "universal_region":
		f.AddUniversalRegion(atom.RegionFromIndex(c[0]))
	case "cfg_edge":
		f.AddCFGEdge(atom.PointFromIndex(c[0]), atom.PointFromIndex(c[1]))
	case "killed":
		f.AddKilled(atom.LoanFromIndex(c[0]), atom.PointFromIndex(c[1]))
	case "outlives":
		f.AddOutlives(atom.RegionFromIndex(c[0]), atom.RegionFromIndex(c[1]), atom.PointFromIndex(c[2]))
	case "region_live_at":
		f.AddRegionLiveAt(atom.RegionFromIndex(c[0]), atom.PointFromIndex(c[1]))
	case "invalidates":
		f.AddInvalidates(atom.PointFromIndex(c[0]), atom.LoanFromIndex(c[1]))
	}
	return nil
}
