// Package solver hands fact sets to a Datalog engine. Facts become Mangle
// atoms whose arguments are the atom indexes, one predicate per relation,
// so the reduced input can be loaded into a Mangle fact store or written out
// as a program for an external solver. Evaluating borrow-check rules is out
// of scope here.
package solver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// ErrUnknownRelation is returned when a predicate has no matching relation.
var ErrUnknownRelation = errors.New("unknown relation")

// Decls declares the seven input predicates.
const Decls = `Decl borrow_region(Region, Loan, Point) bound[/number, /number, /number].
Decl universal_region(Region) bound[/number].
Decl cfg_edge(From, To) bound[/number, /number].
Decl killed(Loan, Point) bound[/number, /number].
Decl outlives(Longer, Shorter, Point) bound[/number, /number, /number].
Decl region_live_at(Region, Point) bound[/number, /number].
Decl invalidates(Point, Loan) bound[/number, /number].
`

// predicates in relation load order.
var predicates = []ast.PredicateSym{
	{Symbol: "borrow_region", Arity: 3},
	{Symbol: "universal_region", Arity: 1},
	{Symbol: "cfg_edge", Arity: 2},
	{Symbol: "killed", Arity: 2},
	{Symbol: "outlives", Arity: 3},
	{Symbol: "region_live_at", Arity: 2},
	{Symbol: "invalidates", Arity: 2},
}

// Predicates returns the predicate symbols of the seven relations.
func Predicates() []ast.PredicateSym {
	out := make([]ast.PredicateSym, len(predicates))
	copy(out, predicates)
	return out
}

// Atoms converts f to Mangle atoms, relation by relation. Point-indexed
// relations are emitted in point order.
func Atoms(f *facts.Facts) []ast.Atom {
	var out []ast.Atom
	add := func(pred string, args ...int) {
		terms := make([]ast.BaseTerm, len(args))
		for i, a := range args {
			terms[i] = ast.Number(int64(a))
		}
		out = append(out, ast.NewAtom(pred, terms...))
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

// ToFactStore loads f into a fresh in-memory Mangle store. Mangle stores are
// sets, so duplicate tuples collapse into one fact.
func ToFactStore(f *facts.Facts) factstore.FactStoreWithRemove {
	store := factstore.NewSimpleInMemoryStore()
	for _, a := range Atoms(f) {
		store.Add(a)
	}
	return store
}

// FromFactStore reads the seven relations back out of store. Predicates
// other than the seven are ignored.
func FromFactStore(store factstore.FactStore) (*facts.Facts, error) {
	f := facts.NewFacts()
	for _, sym := range predicates {
		err := store.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
			return AddAtom(f, a)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s facts: %w", sym.Symbol, err)
		}
	}
	return f, nil
}

// AddAtom adds one ground atom to f.
func AddAtom(f *facts.Facts, a ast.Atom) error {
	args, err := indexes(a)
	if err != nil {
		return err
	}

	switch a.Predicate.Symbol {
	case "borrow_region":
		f.AddBorrowRegion(atom.RegionFromIndex(args[0]), atom.LoanFromIndex(args[1]), atom.PointFromIndex(args[2]))
	case "universal_region":
		f.AddUniversalRegion(atom.RegionFromIndex(args[0]))
	case "cfg_edge":
		f.AddCFGEdge(atom.PointFromIndex(args[0]), atom.PointFromIndex(args[1]))
	case "killed":
		f.AddKilled(atom.LoanFromIndex(args[0]), atom.PointFromIndex(args[1]))
	case "outlives":
		f.AddOutlives(atom.RegionFromIndex(args[0]), atom.RegionFromIndex(args[1]), atom.PointFromIndex(args[2]))
	case "region_live_at":
		f.AddRegionLiveAt(atom.RegionFromIndex(args[0]), atom.PointFromIndex(args[1]))
	case "invalidates":
		f.AddInvalidates(atom.PointFromIndex(args[0]), atom.LoanFromIndex(args[1]))
	}
	return nil
}

// indexes validates the predicate and arity of a and returns its arguments
// as atom indexes.
func indexes(a ast.Atom) ([]int, error) {
	sym, ok := lookup(a.Predicate.Symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %w", a.Predicate.Symbol, ErrUnknownRelation)
	}
	if len(a.Args) != sym.Arity {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", sym.Symbol, sym.Arity, len(a.Args))
	}

	out := make([]int, len(a.Args))
	for i, arg := range a.Args {
		c, ok := arg.(ast.Constant)
		if !ok || c.Type != ast.NumberType {
			return nil, fmt.Errorf("%s argument %d: expected a number, got %v", sym.Symbol, i, arg)
		}
		if c.NumValue < 0 || c.NumValue > math.MaxUint32 {
			return nil, fmt.Errorf("%s argument %d: index %d out of range", sym.Symbol, i, c.NumValue)
		}
		out[i] = int(c.NumValue)
	}
	return out, nil
}

func lookup(name string) (ast.PredicateSym, bool) {
	for _, sym := range predicates {
		if sym.Symbol == name {
			return sym, true
		}
	}
	return ast.PredicateSym{}, false
}

// WriteDatalog writes f as a Mangle program: the Decls header followed by
// one ground fact per tuple.
func WriteDatalog(w io.Writer, f *facts.Facts) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Decls + "\n"); err != nil {
		return fmt.Errorf("failed to write declarations: %w", err)
	}

	buf := make([]byte, 0, 64)
	for _, a := range Atoms(f) {
		buf = append(buf[:0], a.Predicate.Symbol...)
		buf = append(buf, '(')
		for i, arg := range a.Args {
			if i > 0 {
				buf = append(buf, ", "...)
			}
			buf = strconv.AppendInt(buf, arg.(ast.Constant).NumValue, 10)
		}
		buf = append(buf, ").\n"...)
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write facts: %w", err)
		}
	}
	return bw.Flush()
}

// ReadDatalog parses a program produced by WriteDatalog. Rules and facts
// of other predicates are rejected.
func ReadDatalog(r io.Reader) (*facts.Facts, error) {
	unit, err := parse.Unit(r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	f := facts.NewFacts()
	for _, clause := range unit.Clauses {
		if len(clause.Premises) > 0 {
			return nil, fmt.Errorf("rule for %s: only ground facts are accepted", clause.Head.Predicate.Symbol)
		}
		if err := AddAtom(f, clause.Head); err != nil {
			return nil, err
		}
	}
	return f, nil
}
