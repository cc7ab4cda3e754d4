package backfill

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/domain"
)

type memoryStore struct {
	rows      map[int64]time.Time
	dates     map[int64]time.Time
	commits   int
	failAfter int
}

func newMemoryStore(n int) *memoryStore {
	s := &memoryStore{rows: map[int64]time.Time{}, dates: map[int64]time.Time{}, failAfter: -1}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		s.dates[int64(i)] = base.AddDate(0, 0, i)
		s.rows[int64(i)] = base.AddDate(1, 0, 0)
	}
	return s
}

func (s *memoryStore) StaleCreatedAt(_ context.Context, afterID int64, limit int) ([]Candidate, error) {
	var out []Candidate
	for id := afterID + 1; len(out) < limit; id++ {
		date, ok := s.dates[id]
		if !ok {
			break
		}
		if domain.Day(s.rows[id]).Equal(date) {
			continue
		}
		out = append(out, Candidate{ID: id, ExerciseDate: date})
	}
	return out, nil
}

func (s *memoryStore) RestampCreatedAt(_ context.Context, stamps []Restamp) error {
	if s.failAfter >= 0 && s.commits >= s.failAfter {
		return errors.New("connection reset")
	}
	for _, st := range stamps {
		s.rows[st.ID] = st.CreatedAt
	}
	s.commits++
	return nil
}

func TestRunRestampsOntoExerciseDate(t *testing.T) {
	store := newMemoryStore(5)
	updated, err := New(store, rand.New(rand.NewSource(1)), 2).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, updated)
	require.Equal(t, 3, store.commits)

	for id, created := range store.rows {
		require.Equal(t, store.dates[id], domain.Day(created))
		require.GreaterOrEqual(t, created.Hour(), 6)
		require.LessOrEqual(t, created.Hour(), 22)
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	a := newMemoryStore(20)
	b := newMemoryStore(20)
	_, err := New(a, rand.New(rand.NewSource(DefaultSeed)), 7).Run(context.Background())
	require.NoError(t, err)
	_, err = New(b, nil, 7).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.rows, b.rows)
}

func TestRunKeepsCommittedBatchesOnFailure(t *testing.T) {
	store := newMemoryStore(6)
	store.failAfter = 1
	updated, err := New(store, nil, 3).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, updated)

	stale, err := store.StaleCreatedAt(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, stale, 3)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	updated, err := New(newMemoryStore(3), nil, 10).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, updated)
}
