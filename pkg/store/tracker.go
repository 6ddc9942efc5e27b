package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SourceTracker looks up fact sets by the content hash of the files they
// were loaded from. Separate from FactStore to keep that interface small.
// The pipeline uses it to skip directories whose facts are already stored.
type SourceTracker interface {
	// FindFactSetBySource returns the most recently created fact set whose
	// SourceHash equals hash and whose Simplified flag equals simplified.
	// Returns (nil, nil) if none exists.
	FindFactSetBySource(ctx context.Context, hash string, simplified bool) (*FactSetSummary, error)
}

// Compile-time interface check
var _ SourceTracker = (*SQLiteFactStore)(nil)

// FindFactSetBySource returns the newest fact set with the given source hash
// and simplification state.
func (s *SQLiteFactStore) FindFactSetBySource(ctx context.Context, hash string, simplified bool) (*FactSetSummary, error) {
	row := s.db.QueryRowContext(ctx,
		summaryQuery+" WHERE f.source_hash = ? AND f.simplified = ? ORDER BY f.created_at DESC, f.id DESC LIMIT 1",
		hash, simplified)

	sum, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fact set by source: %w", err)
	}
	return &sum, nil
}
