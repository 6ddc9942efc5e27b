package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// DefaultDriver is the pure-Go SQLite driver registered by modernc.org/sqlite.
const DefaultDriver = "sqlite"

// atom kinds as stored in the atoms table
const (
	kindRegion = "region"
	kindLoan   = "loan"
	kindPoint  = "point"
)

// SQLiteFactStore implements FactStore using SQLite as the backend.
type SQLiteFactStore struct {
	db *sql.DB
}

// Compile-time interface check
var _ FactStore = (*SQLiteFactStore)(nil)

// NewSQLiteFactStore creates a new SQLite-backed fact store using the
// default driver. The dbPath can be a file path or ":memory:".
// Creates tables and indexes if they don't exist.
func NewSQLiteFactStore(dbPath string) (*SQLiteFactStore, error) {
	return OpenSQLiteFactStore(DefaultDriver, dbPath)
}

// OpenSQLiteFactStore is NewSQLiteFactStore with an explicit database/sql
// driver name, e.g. "sqlite3" when built with cgo.
func OpenSQLiteFactStore(driver, dbPath string) (*SQLiteFactStore, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives as long as its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteFactStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteFactStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fact_sets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT,
		source_hash TEXT,
		simplified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_fact_sets_source_hash ON fact_sets(source_hash);

	CREATE TABLE IF NOT EXISTS atoms (
		fact_set_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		idx INTEGER NOT NULL,
		token TEXT NOT NULL,
		PRIMARY KEY (fact_set_id, kind, idx),
		FOREIGN KEY (fact_set_id) REFERENCES fact_sets(id)
	);

	CREATE TABLE IF NOT EXISTS tuples (
		fact_set_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		seq INTEGER NOT NULL,
		c0 INTEGER NOT NULL,
		c1 INTEGER,
		c2 INTEGER,
		PRIMARY KEY (fact_set_id, relation, seq),
		FOREIGN KEY (fact_set_id) REFERENCES fact_sets(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveFactSet stores set in a single transaction, replacing any previous
// fact set with the same ID.
func (s *SQLiteFactStore) SaveFactSet(ctx context.Context, set *FactSet) error {
	// Generate ID if not provided
	if set.ID == "" {
		set.ID = uuid.New().String()
	}

	// Set created time if not provided
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFactSetRows(ctx, tx, set.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fact_sets (id, name, source, source_hash, simplified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, set.ID, set.Name, set.Source, set.SourceHash, set.Simplified, set.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add fact set: %w", err)
	}

	if err := insertAtoms(ctx, tx, set); err != nil {
		return err
	}
	if err := insertTuples(ctx, tx, set); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fact set: %w", err)
	}
	return nil
}

func insertAtoms(ctx context.Context, tx *sql.Tx, set *FactSet) error {
	if set.Tables == nil {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO atoms (fact_set_id, kind, idx, token) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare atom insert: %w", err)
	}
	defer stmt.Close()

	byKind := []struct {
		kind   string
		tokens []string
	}{
		{kindRegion, set.Tables.Regions.Tokens()},
		{kindLoan, set.Tables.Loans.Tokens()},
		{kindPoint, set.Tables.Points.Tokens()},
	}
	for _, k := range byKind {
		for idx, token := range k.tokens {
			if _, err := stmt.ExecContext(ctx, set.ID, k.kind, idx, token); err != nil {
				return fmt.Errorf("failed to add %s atom: %w", k.kind, err)
			}
		}
	}
	return nil
}

func insertTuples(ctx context.Context, tx *sql.Tx, set *FactSet) error {
	if set.Facts == nil {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tuples (fact_set_id, relation, seq, c0, c1, c2) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare tuple insert: %w", err)
	}
	defer stmt.Close()

	seq := make(map[string]int)
	for _, t := range encodeTuples(set.Facts) {
		args := []interface{}{set.ID, t.relation, seq[t.relation], nil, nil, nil}
		for i, c := range t.cols {
			args[3+i] = c
		}
		seq[t.relation]++

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to add %s tuple: %w", t.relation, err)
		}
	}
	return nil
}

// GetFactSet retrieves a fact set by its ID.
func (s *SQLiteFactStore) GetFactSet(ctx context.Context, id string) (*FactSet, error) {
	set := FactSet{Tables: atom.NewTables(), Facts: facts.NewFacts()}
	var source, sourceHash sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, source_hash, simplified, created_at
		FROM fact_sets
		WHERE id = ?
	`, id).Scan(&set.ID, &set.Name, &source, &sourceHash, &set.Simplified, &set.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fact set: %w", err)
	}
	set.Source = source.String
	set.SourceHash = sourceHash.String

	if err := s.loadAtoms(ctx, &set); err != nil {
		return nil, err
	}
	if err := s.loadTuples(ctx, &set); err != nil {
		return nil, err
	}

	return &set, nil
}

func (s *SQLiteFactStore) loadAtoms(ctx context.Context, set *FactSet) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, idx, token
		FROM atoms
		WHERE fact_set_id = ?
		ORDER BY kind, idx
	`, set.ID)
	if err != nil {
		return fmt.Errorf("failed to get atoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, token string
		var idx int
		if err := rows.Scan(&kind, &idx, &token); err != nil {
			return fmt.Errorf("failed to scan atom: %w", err)
		}

		// Interning in index order reproduces the stored indexes.
		var got int
		switch kind {
		case kindRegion:
			got = set.Tables.Regions.Intern(token).Index()
		case kindLoan:
			got = set.Tables.Loans.Intern(token).Index()
		case kindPoint:
			got = set.Tables.Points.Intern(token).Index()
		default:
			return fmt.Errorf("unknown atom kind %q", kind)
		}
		if got != idx {
			return fmt.Errorf("%s atom %q: stored index %d, interned as %d", kind, token, idx, got)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating atoms: %w", err)
	}
	return nil
}

func (s *SQLiteFactStore) loadTuples(ctx context.Context, set *FactSet) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relation, c0, c1, c2
		FROM tuples
		WHERE fact_set_id = ?
		ORDER BY relation, seq
	`, set.ID)
	if err != nil {
		return fmt.Errorf("failed to get tuples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var relation string
		var c0 int
		var c1, c2 sql.NullInt64
		if err := rows.Scan(&relation, &c0, &c1, &c2); err != nil {
			return fmt.Errorf("failed to scan tuple: %w", err)
		}

		cols := []int{c0}
		if c1.Valid {
			cols = append(cols, int(c1.Int64))
		}
		if c2.Valid {
			cols = append(cols, int(c2.Int64))
		}
		if err := decodeTuple(set.Facts, tuple{relation: relation, cols: cols}); err != nil {
			return fmt.Errorf("failed to decode tuple: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tuples: %w", err)
	}
	return nil
}

const summaryQuery = `
	SELECT f.id, f.name, f.source, f.source_hash, f.simplified, f.created_at,
		(SELECT COUNT(*) FROM tuples t WHERE t.fact_set_id = f.id)
	FROM fact_sets f
`

func scanSummary(scan func(dest ...interface{}) error) (FactSetSummary, error) {
	var sum FactSetSummary
	var source, sourceHash sql.NullString
	err := scan(&sum.ID, &sum.Name, &source, &sourceHash, &sum.Simplified, &sum.CreatedAt, &sum.TupleCount)
	sum.Source = source.String
	sum.SourceHash = sourceHash.String
	return sum, err
}

// ListFactSets returns summaries of all stored fact sets.
func (s *SQLiteFactStore) ListFactSets(ctx context.Context) ([]FactSetSummary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+" ORDER BY f.created_at, f.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list fact sets: %w", err)
	}
	defer rows.Close()

	var sums []FactSetSummary
	for rows.Next() {
		sum, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact set: %w", err)
		}
		sums = append(sums, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact sets: %w", err)
	}
	return sums, nil
}

// DeleteFactSet removes a fact set and its atoms and tuples.
func (s *SQLiteFactStore) DeleteFactSet(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM fact_sets WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up fact set: %w", err)
	}
	if exists == 0 {
		return ErrFactSetNotFound
	}

	if err := deleteFactSetRows(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func deleteFactSetRows(ctx context.Context, tx *sql.Tx, id string) error {
	for _, table := range []string{"tuples", "atoms"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE fact_set_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fact_sets WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete fact set: %w", err)
	}
	return nil
}

// FactSetCount returns the total number of stored fact sets.
func (s *SQLiteFactStore) FactSetCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fact_sets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fact sets: %w", err)
	}
	return count, nil
}

// Close releases database resources.
func (s *SQLiteFactStore) Close() error {
	return s.db.Close()
}
