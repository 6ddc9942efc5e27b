package borrowfacts

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/dan-solli/borrowfacts/pkg/solver"
	"github.com/dan-solli/borrowfacts/pkg/store"
	"github.com/dan-solli/borrowfacts/pkg/tabdelim"
)

// Error type constants for classification
const (
	ErrTypeParse      = "parse"
	ErrTypeIO         = "io"
	ErrTypeDatabase   = "database"
	ErrTypeExport     = "export"
	ErrTypeValidation = "validation"
	ErrTypeTimeout    = "timeout"
	ErrTypeCanceled   = "canceled"
	ErrTypeUnknown    = "unknown"
)

// StageError records which pipeline stage an error came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ClassifyError inspects an error and returns its type classification.
// This enables grouping errors by category in metrics and traces.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrTypeCanceled
	}

	var parseErr *tabdelim.ParseError
	if errors.As(err, &parseErr) ||
		errors.Is(err, tabdelim.ErrMissingColumns) ||
		errors.Is(err, tabdelim.ErrExtraColumns) ||
		errors.Is(err, solver.ErrUnknownRelation) {
		return ErrTypeParse
	}

	if errors.Is(err, ErrPipelineClosed) ||
		errors.Is(err, ErrDuplicateOutputName) ||
		errors.Is(err, store.ErrFactSetNotFound) {
		return ErrTypeValidation
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case SpanPersist:
			return ErrTypeDatabase
		case SpanExport:
			return ErrTypeExport
		}
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ErrTypeIO
	}

	errStrLower := strings.ToLower(err.Error())

	// Database errors surfacing without a stage (SQLite specific)
	if strings.Contains(errStrLower, "sql") ||
		strings.Contains(errStrLower, "database") ||
		strings.Contains(errStrLower, "constraint") {
		return ErrTypeDatabase
	}

	if strings.Contains(errStrLower, "validation") ||
		strings.Contains(errStrLower, "invalid") ||
		strings.Contains(errStrLower, "must not be") {
		return ErrTypeValidation
	}

	return ErrTypeUnknown
}
