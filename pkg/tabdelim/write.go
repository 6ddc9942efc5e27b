package tabdelim

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// Write stores f in dir using the same layout Load reads, creating dir if
// needed. Point-indexed relations are written in point order so the output
// is stable across runs.
func Write(tables *atom.Tables, dir string, f *facts.Facts) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create facts directory: %w", err)
	}

	rows, err := encodeRows(tables, f)
	if err != nil {
		return err
	}

	for _, name := range Relations() {
		if err := writeFile(filepath.Join(dir, name+Extension), rows[name]); err != nil {
			return err
		}
	}
	return nil
}

// encodeRows turns every tuple of f back into its textual columns.
func encodeRows(tables *atom.Tables, f *facts.Facts) (map[string][][]string, error) {
	enc := encoder{tables: tables}
	rows := make(map[string][][]string, len(relations))

	for _, p := range facts.SortedKeys(f.BorrowRegion) {
		for _, rl := range f.BorrowRegion[p] {
			rows["borrow_region"] = append(rows["borrow_region"],
				[]string{enc.region(rl.Region), enc.loan(rl.Loan), enc.point(p)})
		}
	}
	for _, r := range f.UniversalRegion {
		rows["universal_region"] = append(rows["universal_region"], []string{enc.region(r)})
	}
	for _, e := range f.CFGEdge {
		rows["cfg_edge"] = append(rows["cfg_edge"], []string{enc.point(e.From), enc.point(e.To)})
	}
	for _, p := range facts.SortedKeys(f.Killed) {
		for _, l := range f.Killed[p] {
			rows["killed"] = append(rows["killed"], []string{enc.loan(l), enc.point(p)})
		}
	}
	for _, p := range facts.SortedKeys(f.Outlives) {
		for _, o := range f.Outlives[p] {
			rows["outlives"] = append(rows["outlives"],
				[]string{enc.region(o.Longer), enc.region(o.Shorter), enc.point(p)})
		}
	}
	for _, p := range facts.SortedKeys(f.RegionLiveAt) {
		for _, r := range f.RegionLiveAt[p] {
			rows["region_live_at"] = append(rows["region_live_at"], []string{enc.region(r), enc.point(p)})
		}
	}
	for _, p := range facts.SortedKeys(f.Invalidates) {
		for _, l := range f.Invalidates[p] {
			rows["invalidates"] = append(rows["invalidates"], []string{enc.point(p), enc.loan(l)})
		}
	}

	if enc.err != nil {
		return nil, enc.err
	}
	return rows, nil
}

// encoder resolves atoms to tokens and remembers the first failure.
type encoder struct {
	tables *atom.Tables
	err    error
}

func (e *encoder) region(r atom.Region) string {
	return untern(e, e.tables.Regions, r, "region")
}

func (e *encoder) loan(l atom.Loan) string {
	return untern(e, e.tables.Loans, l, "loan")
}

func (e *encoder) point(p atom.Point) string {
	return untern(e, e.tables.Points, p, "point")
}

func untern[A atom.Atom](e *encoder, in *atom.Interner[A], a A, kind string) string {
	token, ok := in.Untern(a)
	if !ok && e.err == nil {
		e.err = fmt.Errorf("%s %d: %w", kind, a.Index(), ErrUnknownAtom)
	}
	return token
}

func writeFile(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriter(file)
	for _, cols := range rows {
		if _, err := w.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
