package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
)

// MemoryFactStore keeps fact sets in process memory. Sets are cloned on the
// way in and out, so callers may keep mutating their own copies.
type MemoryFactStore struct {
	mu   sync.RWMutex
	sets map[string]*FactSet
}

// Compile-time interface checks
var (
	_ FactStore     = (*MemoryFactStore)(nil)
	_ SourceTracker = (*MemoryFactStore)(nil)
)

// NewMemoryFactStore creates an empty in-memory fact store.
func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{sets: make(map[string]*FactSet)}
}

func (s *MemoryFactStore) SaveFactSet(ctx context.Context, set *FactSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = cloneFactSet(set)
	return nil
}

func (s *MemoryFactStore) GetFactSet(ctx context.Context, id string) (*FactSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[id]
	if !ok {
		return nil, nil
	}
	return cloneFactSet(set), nil
}

func (s *MemoryFactStore) ListFactSets(ctx context.Context) ([]FactSetSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	sums := make([]FactSetSummary, 0, len(s.sets))
	for _, set := range s.sets {
		sums = append(sums, summarize(set))
	}
	s.mu.RUnlock()

	sort.Slice(sums, func(i, j int) bool {
		if !sums[i].CreatedAt.Equal(sums[j].CreatedAt) {
			return sums[i].CreatedAt.Before(sums[j].CreatedAt)
		}
		return sums[i].ID < sums[j].ID
	})
	return sums, nil
}

func (s *MemoryFactStore) DeleteFactSet(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return ErrFactSetNotFound
	}
	delete(s.sets, id)
	return nil
}

func (s *MemoryFactStore) FactSetCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets)), nil
}

// FindFactSetBySource returns the newest fact set loaded from files with
// the given hash and simplification state, or (nil, nil).
func (s *MemoryFactStore) FindFactSetBySource(ctx context.Context, hash string, simplified bool) (*FactSetSummary, error) {
	sums, err := s.ListFactSets(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(sums) - 1; i >= 0; i-- {
		if sums[i].SourceHash == hash && sums[i].Simplified == simplified {
			return &sums[i], nil
		}
	}
	return nil, nil
}

func (s *MemoryFactStore) Close() error {
	return nil
}

func cloneFactSet(set *FactSet) *FactSet {
	c := *set
	if set.Tables != nil {
		c.Tables = set.Tables.Clone()
	} else {
		c.Tables = atom.NewTables()
	}
	if set.Facts != nil {
		c.Facts = set.Facts.Clone()
	} else {
		c.Facts = facts.NewFacts()
	}
	return &c
}
