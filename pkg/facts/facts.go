// Package facts holds the relational input of the borrow analysis and the
// control-flow simplification that runs before the facts reach the solver.
package facts

import (
	"maps"
	"slices"

	"github.com/dan-solli/borrowfacts/pkg/atom"
)

// Edge is a directed control-flow edge From -> To.
type Edge[P atom.Atom] struct {
	From P
	To   P
}

// RegionLoan is the payload of a borrow_region tuple.
type RegionLoan[R, L atom.Atom] struct {
	Region R
	Loan   L
}

// RegionPair is the payload of an outlives tuple: Longer must outlive Shorter.
type RegionPair[R atom.Atom] struct {
	Longer  R
	Shorter R
}

// AllFacts is the set of facts the borrow analysis starts from.
//
// Point-indexed relations are stored as an index keyed by the point column.
// The slice under each point keeps insertion order and is never deduplicated.
type AllFacts[R, L, P atom.Atom] struct {
	// BorrowRegion is borrow_region(R, L, P): region R may hold data from
	// loan L starting at point P.
	BorrowRegion map[P][]RegionLoan[R, L]

	// UniversalRegion is universal_region(R): R is free in the function body.
	UniversalRegion []R

	// CFGEdge is cfg_edge(P, Q) for each control-flow edge P -> Q.
	CFGEdge []Edge[P]

	// Killed is killed(L, P): a prefix of the path borrowed by L is assigned at P.
	Killed map[P][]L

	// Outlives is outlives(R1, R2, P): R1 must outlive R2 at P.
	Outlives map[P][]RegionPair[R]

	// RegionLiveAt is region_live_at(R, P): R appears in a variable live at P.
	RegionLiveAt map[P][]R

	// Invalidates is invalidates(P, L): L is invalidated at P.
	Invalidates map[P][]L
}

// Facts is the store over the concrete atom kinds produced by interning.
type Facts = AllFacts[atom.Region, atom.Loan, atom.Point]

// New returns an empty fact store.
func New[R, L, P atom.Atom]() *AllFacts[R, L, P] {
	return &AllFacts[R, L, P]{
		BorrowRegion: make(map[P][]RegionLoan[R, L]),
		Killed:       make(map[P][]L),
		Outlives:     make(map[P][]RegionPair[R]),
		RegionLiveAt: make(map[P][]R),
		Invalidates:  make(map[P][]L),
	}
}

// NewFacts returns an empty store over the concrete atom kinds.
func NewFacts() *Facts {
	return New[atom.Region, atom.Loan, atom.Point]()
}

// AddBorrowRegion appends borrow_region(r, l, p).
func (f *AllFacts[R, L, P]) AddBorrowRegion(r R, l L, p P) {
	if f.BorrowRegion == nil {
		f.BorrowRegion = make(map[P][]RegionLoan[R, L])
	}
	f.BorrowRegion[p] = append(f.BorrowRegion[p], RegionLoan[R, L]{Region: r, Loan: l})
}

// AddUniversalRegion appends universal_region(r).
func (f *AllFacts[R, L, P]) AddUniversalRegion(r R) {
	f.UniversalRegion = append(f.UniversalRegion, r)
}

// AddCFGEdge appends cfg_edge(from, to).
func (f *AllFacts[R, L, P]) AddCFGEdge(from, to P) {
	f.CFGEdge = append(f.CFGEdge, Edge[P]{From: from, To: to})
}

// AddKilled appends killed(l, p).
func (f *AllFacts[R, L, P]) AddKilled(l L, p P) {
	if f.Killed == nil {
		f.Killed = make(map[P][]L)
	}
	f.Killed[p] = append(f.Killed[p], l)
}

// AddOutlives appends outlives(longer, shorter, p).
func (f *AllFacts[R, L, P]) AddOutlives(longer, shorter R, p P) {
	if f.Outlives == nil {
		f.Outlives = make(map[P][]RegionPair[R])
	}
	f.Outlives[p] = append(f.Outlives[p], RegionPair[R]{Longer: longer, Shorter: shorter})
}

// AddRegionLiveAt appends region_live_at(r, p).
func (f *AllFacts[R, L, P]) AddRegionLiveAt(r R, p P) {
	if f.RegionLiveAt == nil {
		f.RegionLiveAt = make(map[P][]R)
	}
	f.RegionLiveAt[p] = append(f.RegionLiveAt[p], r)
}

// AddInvalidates appends invalidates(p, l).
func (f *AllFacts[R, L, P]) AddInvalidates(p P, l L) {
	if f.Invalidates == nil {
		f.Invalidates = make(map[P][]L)
	}
	f.Invalidates[p] = append(f.Invalidates[p], l)
}

// BorrowRegionsAt returns the borrow_region payloads recorded at p.
func (f *AllFacts[R, L, P]) BorrowRegionsAt(p P) []RegionLoan[R, L] {
	return f.BorrowRegion[p]
}

// LiveRegionsAt returns the regions live at p.
func (f *AllFacts[R, L, P]) LiveRegionsAt(p P) []R {
	return f.RegionLiveAt[p]
}

// KilledAt returns the loans killed at p.
func (f *AllFacts[R, L, P]) KilledAt(p P) []L {
	return f.Killed[p]
}

// OutlivesAt returns the outlives constraints recorded at p.
func (f *AllFacts[R, L, P]) OutlivesAt(p P) []RegionPair[R] {
	return f.Outlives[p]
}

// InvalidatesAt returns the loans invalidated at p.
func (f *AllFacts[R, L, P]) InvalidatesAt(p P) []L {
	return f.Invalidates[p]
}

// removePoint drops every point-indexed tuple whose point column is p.
// universal_region has no point column and cfg_edge is rewritten separately.
func (f *AllFacts[R, L, P]) removePoint(p P) {
	delete(f.BorrowRegion, p)
	delete(f.Killed, p)
	delete(f.Outlives, p)
	delete(f.RegionLiveAt, p)
	delete(f.Invalidates, p)
}

// RelationCounts holds the number of tuples per relation.
type RelationCounts struct {
	BorrowRegion    int `json:"borrow_region"`
	UniversalRegion int `json:"universal_region"`
	CFGEdge         int `json:"cfg_edge"`
	Killed          int `json:"killed"`
	Outlives        int `json:"outlives"`
	RegionLiveAt    int `json:"region_live_at"`
	Invalidates     int `json:"invalidates"`
}

// Total returns the number of tuples across all relations.
func (c RelationCounts) Total() int {
	return c.BorrowRegion + c.UniversalRegion + c.CFGEdge + c.Killed +
		c.Outlives + c.RegionLiveAt + c.Invalidates
}

// ByRelation returns the counts keyed by relation name.
func (c RelationCounts) ByRelation() map[string]int {
	return map[string]int{
		"borrow_region":    c.BorrowRegion,
		"universal_region": c.UniversalRegion,
		"cfg_edge":         c.CFGEdge,
		"killed":           c.Killed,
		"outlives":         c.Outlives,
		"region_live_at":   c.RegionLiveAt,
		"invalidates":      c.Invalidates,
	}
}

// Counts returns the number of tuples held by each relation.
func (f *AllFacts[R, L, P]) Counts() RelationCounts {
	return RelationCounts{
		BorrowRegion:    indexLen(f.BorrowRegion),
		UniversalRegion: len(f.UniversalRegion),
		CFGEdge:         len(f.CFGEdge),
		Killed:          indexLen(f.Killed),
		Outlives:        indexLen(f.Outlives),
		RegionLiveAt:    indexLen(f.RegionLiveAt),
		Invalidates:     indexLen(f.Invalidates),
	}
}

func indexLen[K comparable, V any](index map[K][]V) int {
	n := 0
	for _, values := range index {
		n += len(values)
	}
	return n
}

// Points returns every point mentioned by any relation, sorted by index.
func (f *AllFacts[R, L, P]) Points() []P {
	seen := make(map[P]struct{})
	for _, e := range f.CFGEdge {
		seen[e.From] = struct{}{}
		seen[e.To] = struct{}{}
	}
	for p := range f.BorrowRegion {
		seen[p] = struct{}{}
	}
	for p := range f.Killed {
		seen[p] = struct{}{}
	}
	for p := range f.Outlives {
		seen[p] = struct{}{}
	}
	for p := range f.RegionLiveAt {
		seen[p] = struct{}{}
	}
	for p := range f.Invalidates {
		seen[p] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Clone returns a deep copy of f.
func (f *AllFacts[R, L, P]) Clone() *AllFacts[R, L, P] {
	return &AllFacts[R, L, P]{
		BorrowRegion:    cloneIndex(f.BorrowRegion),
		UniversalRegion: slices.Clone(f.UniversalRegion),
		CFGEdge:         slices.Clone(f.CFGEdge),
		Killed:          cloneIndex(f.Killed),
		Outlives:        cloneIndex(f.Outlives),
		RegionLiveAt:    cloneIndex(f.RegionLiveAt),
		Invalidates:     cloneIndex(f.Invalidates),
	}
}

func cloneIndex[K comparable, V any](index map[K][]V) map[K][]V {
	out := make(map[K][]V, len(index))
	for k, values := range index {
		out[k] = slices.Clone(values)
	}
	return out
}

// SortedKeys returns the keys of a point index in ascending order.
func SortedKeys[P atom.Atom, V any](index map[P][]V) []P {
	return slices.Sorted(maps.Keys(index))
}
