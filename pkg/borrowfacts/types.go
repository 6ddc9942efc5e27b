package borrowfacts

import (
	"github.com/dan-solli/borrowfacts/pkg/facts"
	"github.com/dan-solli/borrowfacts/pkg/solver"
	"github.com/dan-solli/borrowfacts/pkg/store"
	"github.com/dan-solli/borrowfacts/pkg/tabdelim"
)

// Type re-exports for caller convenience

// SimplifyStats is re-exported from facts package
type SimplifyStats = facts.SimplifyStats

// RelationCounts is re-exported from facts package
type RelationCounts = facts.RelationCounts

// FactSet is re-exported from store package
type FactSet = store.FactSet

// FactSetSummary is re-exported from store package
type FactSetSummary = store.FactSetSummary

// Errors re-exported so callers can match them without importing the
// lower-level packages.
var (
	ErrFactSetNotFound = store.ErrFactSetNotFound
	ErrMissingColumns  = tabdelim.ErrMissingColumns
	ErrExtraColumns    = tabdelim.ErrExtraColumns
	ErrUnknownRelation = solver.ErrUnknownRelation
)
