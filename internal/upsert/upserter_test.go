package upsert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/domain"
)

type metricKey struct {
	user int64
	date time.Time
}

// memoryStore keeps committed rows only; open batches stage their writes.
type memoryStore struct {
	exercises []domain.ExerciseRecord
	metrics   map[metricKey]domain.BodyMetric
	begun     int
	failAfter int // fail the Nth insert across all batches when > 0
	inserts   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{metrics: make(map[metricKey]domain.BodyMetric)}
}

func (s *memoryStore) BeginBatch(context.Context) (Batch, error) {
	s.begun++
	return &memoryBatch{store: s, metrics: make(map[metricKey]domain.BodyMetric)}, nil
}

type memoryBatch struct {
	store     *memoryStore
	exercises []domain.ExerciseRecord
	metrics   map[metricKey]domain.BodyMetric
}

func (b *memoryBatch) tick() error {
	b.store.inserts++
	if b.store.failAfter > 0 && b.store.inserts >= b.store.failAfter {
		return errors.New("connection lost")
	}
	return nil
}

func (b *memoryBatch) InsertExercise(_ context.Context, rec domain.ExerciseRecord) error {
	if err := b.tick(); err != nil {
		return err
	}
	b.exercises = append(b.exercises, rec)
	return nil
}

func (b *memoryBatch) InsertBodyMetricIfAbsent(_ context.Context, m domain.BodyMetric) (bool, error) {
	if err := b.tick(); err != nil {
		return false, err
	}
	key := metricKey{user: m.UserID, date: m.MeasurementDate}
	if _, ok := b.store.metrics[key]; ok {
		return false, nil
	}
	if _, ok := b.metrics[key]; ok {
		return false, nil
	}
	b.metrics[key] = m
	return true, nil
}

func (b *memoryBatch) Commit(context.Context) error {
	b.store.exercises = append(b.store.exercises, b.exercises...)
	for k, v := range b.metrics {
		b.store.metrics[k] = v
	}
	return nil
}

func (b *memoryBatch) Rollback(context.Context) error { return nil }

func exercise(user int64) domain.ExerciseRecord {
	return domain.ExerciseRecord{UserID: user, ExerciseType: "Yoga", ExerciseDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), DurationMinutes: 30, CaloriesBurned: 100}
}

func metric(user int64, day int) domain.BodyMetric {
	height := 175.0
	return domain.BodyMetric{UserID: user, MeasurementDate: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC), WeightKG: 70, HeightCM: &height}
}

func TestCommitsEveryBatchSizeRows(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	var commits []int
	u := New(store, 2, WithCommitHook(func(rows int) { commits = append(commits, rows) }))

	for i := 0; i < 5; i++ {
		require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	}
	require.Len(t, store.exercises, 4, "fifth row waits for the final flush")
	require.NoError(t, u.Flush(ctx))
	require.Len(t, store.exercises, 5)
	require.Equal(t, []int{2, 2, 1}, commits)
	require.Equal(t, 5, u.Committed()[TableExerciseRecords].Inserted)
}

func TestBodyMetricDedupIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	u := New(store, 10)

	require.Equal(t, domain.OutcomeInserted, u.WriteBodyMetric(ctx, metric(1, 5)).Outcome)
	res := u.WriteBodyMetric(ctx, metric(1, 5))
	require.Equal(t, domain.OutcomeSkipped, res.Outcome)
	require.Equal(t, domain.SkipDuplicate, res.Reason)
	require.NoError(t, u.Flush(ctx))

	again := New(store, 10)
	require.Equal(t, domain.OutcomeSkipped, again.WriteBodyMetric(ctx, metric(1, 5)).Outcome)
	require.NoError(t, again.Flush(ctx))

	require.Len(t, store.metrics, 1)
	stored := store.metrics[metricKey{user: 1, date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)}]
	require.NotNil(t, stored.BMI, "BMI is recomputed on write")
	require.InDelta(t, 22.86, *stored.BMI, 0.001)

	tally := u.Committed()[TableBodyMetrics]
	require.Equal(t, 1, tally.Inserted)
	require.Equal(t, 1, tally.Skipped[domain.SkipDuplicate])
}

func TestFailureLosesOnlyTheOpenBatch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.failAfter = 4
	u := New(store, 2)

	require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	u.Skip(TableExerciseRecords, domain.Skipped(domain.SkipMalformed, domain.ErrMalformedRow))

	res := u.WriteExercise(ctx, exercise(1))
	require.True(t, res.IsFatal())
	require.ErrorIs(t, res.Err, domain.ErrTransactionFailure)

	require.Len(t, store.exercises, 2)
	tally := u.Committed()[TableExerciseRecords]
	require.Equal(t, 2, tally.Inserted, "only checkpointed rows are reported as inserted")
	require.Equal(t, 1, tally.Skipped[domain.SkipMalformed])
}

func TestSkipsDoNotMoveCommitBoundary(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	u := New(store, 2)

	require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	for i := 0; i < 5; i++ {
		u.Skip(TableExerciseRecords, domain.Skipped(domain.SkipMalformed, domain.ErrMalformedRow))
	}
	require.Empty(t, store.exercises)
	require.False(t, u.WriteExercise(ctx, exercise(1)).IsFatal())
	require.Len(t, store.exercises, 2)
	require.Equal(t, 1, store.begun)
}

func TestCancelledContextDoesNotOpenBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newMemoryStore()
	res := New(store, 2).WriteExercise(ctx, exercise(1))
	require.True(t, res.IsFatal())
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Zero(t, store.begun)
}
