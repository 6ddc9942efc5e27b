// Package atom defines the dense integer identifiers used by the fact store.
//
// Regions, loans and points are interned elsewhere and arrive here as small
// non-negative integers. Each kind is its own named type so the compiler keeps
// them apart.
package atom

import "strconv"

// Atom is the contract every identifier kind satisfies: a uint32-backed value
// with an explicit conversion to its integer index. The ~uint32 core gives
// equality, a total order and hashability.
type Atom interface {
	~uint32
	Index() int
}

// Region is a lifetime name.
type Region uint32

// Loan identifies a single borrow.
type Loan uint32

// Point is a location in the control-flow graph.
type Point uint32

// Index returns the dense integer index of r.
func (r Region) Index() int { return int(r) }

// Index returns the dense integer index of l.
func (l Loan) Index() int { return int(l) }

// Index returns the dense integer index of p.
func (p Point) Index() int { return int(p) }

func (r Region) String() string { return "r" + strconv.Itoa(int(r)) }
func (l Loan) String() string   { return "l" + strconv.Itoa(int(l)) }
func (p Point) String() string  { return "p" + strconv.Itoa(int(p)) }

// FromIndex converts a dense index back into an atom of kind A.
// Panics on negative indexes.
func FromIndex[A Atom](index int) A {
	if index < 0 {
		panic("atom: negative index " + strconv.Itoa(index))
	}
	return A(uint32(index))
}

// RegionFromIndex is FromIndex for regions.
func RegionFromIndex(index int) Region { return FromIndex[Region](index) }

// LoanFromIndex is FromIndex for loans.
func LoanFromIndex(index int) Loan { return FromIndex[Loan](index) }

// PointFromIndex is FromIndex for points.
func PointFromIndex(index int) Point { return FromIndex[Point](index) }
