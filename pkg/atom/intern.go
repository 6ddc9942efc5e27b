package atom

// Interner maps textual tokens to dense atoms of one kind and back.
// The first token interned gets index 0, the next 1, and so on.
// Not safe for concurrent use.
type Interner[A Atom] struct {
	byToken map[string]A
	tokens  []string
}

// NewInterner creates an empty interner.
func NewInterner[A Atom]() *Interner[A] {
	return &Interner[A]{byToken: make(map[string]A)}
}

// Intern returns the atom for token, allocating the next index on first use.
func (in *Interner[A]) Intern(token string) A {
	if a, ok := in.byToken[token]; ok {
		return a
	}
	a := FromIndex[A](len(in.tokens))
	in.byToken[token] = a
	in.tokens = append(in.tokens, token)
	return a
}

// Lookup returns the atom for token without allocating.
func (in *Interner[A]) Lookup(token string) (A, bool) {
	a, ok := in.byToken[token]
	return a, ok
}

// Untern returns the token for a. ok is false when a was never interned.
func (in *Interner[A]) Untern(a A) (token string, ok bool) {
	i := a.Index()
	if i >= len(in.tokens) {
		return "", false
	}
	return in.tokens[i], true
}

// Len returns the number of distinct tokens interned so far.
func (in *Interner[A]) Len() int {
	return len(in.tokens)
}

// Tokens returns the interned tokens in index order.
func (in *Interner[A]) Tokens() []string {
	out := make([]string, len(in.tokens))
	copy(out, in.tokens)
	return out
}

// Tables holds one interner per atom kind. A token used as a point in one
// relation maps to the same Point in every other relation.
type Tables struct {
	Regions *Interner[Region]
	Loans   *Interner[Loan]
	Points  *Interner[Point]
}

// NewTables creates empty interning tables.
func NewTables() *Tables {
	return &Tables{
		Regions: NewInterner[Region](),
		Loans:   NewInterner[Loan](),
		Points:  NewInterner[Point](),
	}
}

// Clone returns an independent copy of in.
func (in *Interner[A]) Clone() *Interner[A] {
	out := &Interner[A]{
		byToken: make(map[string]A, len(in.byToken)),
		tokens:  make([]string, len(in.tokens)),
	}
	copy(out.tokens, in.tokens)
	for token, a := range in.byToken {
		out.byToken[token] = a
	}
	return out
}

// Clone returns an independent copy of t.
func (t *Tables) Clone() *Tables {
	return &Tables{
		Regions: t.Regions.Clone(),
		Loans:   t.Loans.Clone(),
		Points:  t.Points.Clone(),
	}
}
