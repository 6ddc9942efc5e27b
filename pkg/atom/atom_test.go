package atom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromIndex_RoundTrip(t *testing.T) {
	for _, i := range []int{0, 1, 7, 1 << 20} {
		assert.Equal(t, i, RegionFromIndex(i).Index())
		assert.Equal(t, i, LoanFromIndex(i).Index())
		assert.Equal(t, i, PointFromIndex(i).Index())
	}
}

func TestFromIndex_NegativePanics(t *testing.T) {
	assert.Panics(t, func() { FromIndex[Point](-1) })
}

func TestAtom_String(t *testing.T) {
	assert.Equal(t, "r3", Region(3).String())
	assert.Equal(t, "l0", Loan(0).String())
	assert.Equal(t, "p12", Point(12).String())
}

func TestInterner_DenseAndStable(t *testing.T) {
	in := NewInterner[Point]()

	a := in.Intern("Start(bb0[0])")
	b := in.Intern("Mid(bb0[0])")
	again := in.Intern("Start(bb0[0])")

	assert.Equal(t, Point(0), a)
	assert.Equal(t, Point(1), b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, in.Len())

	token, ok := in.Untern(b)
	require.True(t, ok)
	assert.Equal(t, "Mid(bb0[0])", token)

	_, ok = in.Untern(Point(9))
	assert.False(t, ok)

	got, ok := in.Lookup("Mid(bb0[0])")
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = in.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, in.Len(), "Lookup must not allocate")

	assert.Equal(t, []string{"Start(bb0[0])", "Mid(bb0[0])"}, in.Tokens())
}

func TestTables_KindsAreIndependent(t *testing.T) {
	tables := NewTables()

	r := tables.Regions.Intern("'a")
	l := tables.Loans.Intern("'a")
	p := tables.Points.Intern("'a")

	assert.Equal(t, 0, r.Index())
	assert.Equal(t, 0, l.Index())
	assert.Equal(t, 0, p.Index())
	assert.Equal(t, 1, tables.Regions.Len())
	assert.Equal(t, 1, tables.Loans.Len())
	assert.Equal(t, 1, tables.Points.Len())
}

func TestTables_Clone(t *testing.T) {
	tables := NewTables()
	tables.Points.Intern("a")

	c := tables.Clone()
	c.Points.Intern("b")

	assert.Equal(t, 1, tables.Points.Len())
	assert.Equal(t, 2, c.Points.Len())
	p, ok := c.Points.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, Point(0), p)
}
