package tabdelim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// writeFactsDir creates a facts directory with every relation present.
// Relations missing from files are written as empty files.
func writeFactsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range Relations() {
		content := files[name]
		path := filepath.Join(dir, name+Extension)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

func sampleFiles() map[string]string {
	return map[string]string{
		"borrow_region":    "'a\tbw0\tMid(bb0[1])\n",
		"universal_region": "'static\n",
		"cfg_edge": strings.Join([]string{
			"Start(bb0[0])\tMid(bb0[0])",
			"Mid(bb0[0])\tStart(bb0[1])",
			"Start(bb0[1])\tMid(bb0[1])",
			"",
		}, "\n"),
		"killed":         "bw0\tMid(bb0[0])\n",
		"outlives":       "'a\t'b\tMid(bb0[1])\n",
		"region_live_at": "'a\tMid(bb0[1])\n'b\tMid(bb0[1])\n",
		"invalidates":    "Start(bb0[1])\tbw0\n",
	}
}

func TestLoad(t *testing.T) {
	dir := writeFactsDir(t, sampleFiles())
	tables := atom.NewTables()

	f, err := Load(tables, dir)
	require.NoError(t, err)

	assert.Equal(t, facts.RelationCounts{
		BorrowRegion:    1,
		UniversalRegion: 1,
		CFGEdge:         3,
		Killed:          1,
		Outlives:        1,
		RegionLiveAt:    2,
		Invalidates:     1,
	}, f.Counts())

	// Interning is shared across relations.
	mid1, ok := tables.Points.Lookup("Mid(bb0[1])")
	require.True(t, ok)
	assert.Len(t, f.BorrowRegionsAt(mid1), 1)
	assert.Len(t, f.LiveRegionsAt(mid1), 2)
	assert.Len(t, f.OutlivesAt(mid1), 1)

	bw0, ok := tables.Loans.Lookup("bw0")
	require.True(t, ok)
	start1, _ := tables.Points.Lookup("Start(bb0[1])")
	assert.Equal(t, []atom.Loan{bw0}, f.InvalidatesAt(start1))

	assert.Equal(t, 4, tables.Points.Len())
	assert.Equal(t, 3, tables.Regions.Len())
	assert.Equal(t, 1, tables.Loans.Len())
}

func TestLoad_ColumnErrors(t *testing.T) {
	tests := []struct {
		name     string
		relation string
		content  string
		line     int
		want     error
	}{
		{"too few columns", "cfg_edge", "a\tb\nc\n", 2, ErrMissingColumns},
		{"too many columns", "killed", "bw0\tp\textra\n", 1, ErrExtraColumns},
		{"blank line", "outlives", "'a\t'b\tp\n\n'a\t'b\tq\n", 2, ErrMissingColumns},
		{"extra column on unary relation", "universal_region", "'a\t'b\n", 1, ErrExtraColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFactsDir(t, map[string]string{tt.relation: tt.content})

			_, err := Load(atom.NewTables(), dir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.line, parseErr.Line)
			assert.Equal(t, tt.relation+Extension, filepath.Base(parseErr.Path))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := writeFactsDir(t, nil)
	require.NoError(t, os.Remove(filepath.Join(dir, "killed.facts")))

	_, err := Load(atom.NewTables(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_CRLF(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{"cfg_edge": "a\tb\r\nb\tc\r\n"})

	f, err := Load(atom.NewTables(), dir)
	require.NoError(t, err)
	assert.Len(t, f.CFGEdge, 2)
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := writeFactsDir(t, sampleFiles())
	tables := atom.NewTables()
	original, err := Load(tables, dir)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Write(tables, out, original))

	reloadTables := atom.NewTables()
	reloaded, err := Load(reloadTables, out)
	require.NoError(t, err)
	assert.Equal(t, original.Counts(), reloaded.Counts())

	data, err := os.ReadFile(filepath.Join(out, "cfg_edge.facts"))
	require.NoError(t, err)
	assert.Equal(t, sampleFiles()["cfg_edge"], string(data))
}

func TestWrite_AfterSimplify(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{
		"cfg_edge": "a\tb\nb\tc\nc\td\n",
	})
	tables := atom.NewTables()
	f, err := Load(tables, dir)
	require.NoError(t, err)

	f.SimplifyCFG()

	out := t.TempDir()
	require.NoError(t, Write(tables, out, f))

	data, err := os.ReadFile(filepath.Join(out, "cfg_edge.facts"))
	require.NoError(t, err)
	assert.Equal(t, "a\td\n", string(data))
}

func TestWrite_UnknownAtom(t *testing.T) {
	f := facts.NewFacts()
	f.AddCFGEdge(0, 1)

	err := Write(atom.NewTables(), t.TempDir(), f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAtom))
}

func TestRelationsAndColumns(t *testing.T) {
	assert.Equal(t, []string{
		"borrow_region", "universal_region", "cfg_edge", "killed",
		"outlives", "region_live_at", "invalidates",
	}, Relations())
	assert.Equal(t, 3, Columns("borrow_region"))
	assert.Equal(t, 1, Columns("universal_region"))
	assert.Equal(t, 0, Columns("nope"))
}

func TestHashDir(t *testing.T) {
	a := writeFactsDir(t, sampleFiles())
	b := writeFactsDir(t, sampleFiles())
	c := writeFactsDir(t, map[string]string{"cfg_edge": "x\ty\n"})

	hashA, err := HashDir(a)
	require.NoError(t, err)
	hashB, err := HashDir(b)
	require.NoError(t, err)
	hashC, err := HashDir(c)
	require.NoError(t, err)

	assert.Len(t, hashA, 64)
	assert.Equal(t, hashA, hashB)
	assert.NotEqual(t, hashA, hashC)
}
