// Package store persists fact sets so a reduced set can be handed to the
// solver later without reloading and re-simplifying the source files.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// FactSet is one analyzed function's facts together with the interning
// tables that give its atoms their names.
type FactSet struct {
	ID         string       // Unique identifier (UUID)
	Name       string       // Display name, usually the source directory's base name
	Source     string       // Directory the facts were loaded from
	SourceHash string       // SHA-256 of the source relation files
	Simplified bool         // Whether SimplifyCFG has run on Facts
	CreatedAt  time.Time    // Timestamp of creation
	Tables     *atom.Tables // Token tables; nil is stored as empty tables
	Facts      *facts.Facts // Relation data
}

// FactSetSummary is a lightweight view of a stored fact set for listings.
type FactSetSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source,omitempty"`
	SourceHash string    `json:"source_hash,omitempty"`
	Simplified bool      `json:"simplified"`
	CreatedAt  time.Time `json:"created_at"`
	TupleCount int64     `json:"tuple_count"`
}

// FactStore defines persistence for fact sets.
type FactStore interface {
	// SaveFactSet stores set, replacing any fact set with the same ID.
	// If set.ID is empty, a new UUID is assigned.
	SaveFactSet(ctx context.Context, set *FactSet) error

	// GetFactSet retrieves a fact set by ID.
	// Returns (nil, nil) if the fact set is not found.
	GetFactSet(ctx context.Context, id string) (*FactSet, error)

	// ListFactSets returns summaries ordered by creation time, then ID.
	ListFactSets(ctx context.Context) ([]FactSetSummary, error)

	// DeleteFactSet removes a fact set and all of its tuples.
	// Returns ErrFactSetNotFound if no fact set has the ID.
	DeleteFactSet(ctx context.Context, id string) error

	// FactSetCount returns the number of stored fact sets.
	FactSetCount(ctx context.Context) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrFactSetNotFound indicates that no fact set was found for the given ID.
var ErrFactSetNotFound = errors.New("fact set not found")

func summarize(set *FactSet) FactSetSummary {
	var tuples int64
	if set.Facts != nil {
		tuples = int64(set.Facts.Counts().Total())
	}
	return FactSetSummary{
		ID:         set.ID,
		Name:       set.Name,
		Source:     set.Source,
		SourceHash: set.SourceHash,
		Simplified: set.Simplified,
		CreatedAt:  set.CreatedAt,
		TupleCount: tuples,
	}
}
