// Package tabdelim reads and writes fact sets stored as one tab-separated
// `<relation>.facts` file per relation.
//
// Every line is one tuple. Columns map left to right onto the tuple fields
// and each string is interned through a shared atom.Tables, so the same token
// names the same atom in every file. A malformed line aborts the whole load:
// a silently dropped fact would change the analysis result.
package tabdelim

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// Extension is the file extension of every relation file.
const Extension = ".facts"

// maxLineBytes bounds a single line; MIR point names can get long.
const maxLineBytes = 16 * 1024 * 1024

var (
	// ErrMissingColumns indicates a line with fewer columns than its relation.
	ErrMissingColumns = errors.New("missing columns")

	// ErrExtraColumns indicates a line with more columns than its relation.
	ErrExtraColumns = errors.New("extra data")

	// ErrUnknownAtom indicates an atom with no token in the interning tables.
	ErrUnknownAtom = errors.New("atom was never interned")
)

// ParseError reports the file and 1-based line of a malformed tuple.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing line %d of `%s`: %v", e.Line, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// relation describes how the columns of one relation file land in the store.
type relation struct {
	name    string
	columns int
	add     func(t *atom.Tables, f *facts.Facts, cols []string)
}

var relations = []relation{
	{"borrow_region", 3, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddBorrowRegion(t.Regions.Intern(c[0]), t.Loans.Intern(c[1]), t.Points.Intern(c[2]))
	}},
	{"universal_region", 1, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddUniversalRegion(t.Regions.Intern(c[0]))
	}},
	{"cfg_edge", 2, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddCFGEdge(t.Points.Intern(c[0]), t.Points.Intern(c[1]))
	}},
	{"killed", 2, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddKilled(t.Loans.Intern(c[0]), t.Points.Intern(c[1]))
	}},
	{"outlives", 3, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddOutlives(t.Regions.Intern(c[0]), t.Regions.Intern(c[1]), t.Points.Intern(c[2]))
	}},
	{"region_live_at", 2, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddRegionLiveAt(t.Regions.Intern(c[0]), t.Points.Intern(c[1]))
	}},
	{"invalidates", 2, func(t *atom.Tables, f *facts.Facts, c []string) {
		f.AddInvalidates(t.Points.Intern(c[0]), t.Loans.Intern(c[1]))
	}},
}

// Relations returns the relation names in load order.
func Relations() []string {
	names := make([]string, len(relations))
	for i, r := range relations {
		names[i] = r.name
	}
	return names
}

// Columns returns the column count of a relation, or 0 if name is unknown.
func Columns(name string) int {
	for _, r := range relations {
		if r.name == name {
			return r.columns
		}
	}
	return 0
}

// Load reads all seven relation files from dir. Every file must exist.
func Load(tables *atom.Tables, dir string) (*facts.Facts, error) {
	f := facts.NewFacts()
	for _, r := range relations {
		path := filepath.Join(dir, r.name+Extension)
		if err := loadFile(tables, f, r, path); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func loadFile(tables *atom.Tables, f *facts.Facts, r relation, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.name, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		cols := splitColumns(scanner.Text())
		switch {
		case len(cols) < r.columns:
			return &ParseError{Path: path, Line: line, Err: ErrMissingColumns}
		case len(cols) > r.columns:
			return &ParseError{Path: path, Line: line, Err: ErrExtraColumns}
		}
		r.add(tables, f, cols)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// splitColumns splits a line on tabs. An empty line has no columns.
func splitColumns(line string) []string {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil
	}
	return strings.Split(line, "\t")
}
