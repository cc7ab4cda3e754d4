// Package upsert writes canonical exercise and body metric rows in checkpointed batches.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/consolidation/internal/domain"
)

// Table names used in tallies and metrics.
const (
	TableExerciseRecords = "exercise_records"
	TableBodyMetrics     = "body_metrics"
)

// Batch is one open transaction.
type Batch interface {
	InsertExercise(ctx context.Context, rec domain.ExerciseRecord) error
	// InsertBodyMetricIfAbsent reports false when (user, date) already exists.
	InsertBodyMetricIfAbsent(ctx context.Context, m domain.BodyMetric) (bool, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens batches.
type Store interface {
	BeginBatch(ctx context.Context) (Batch, error)
}

// Option configures an Upserter.
type Option func(*Upserter)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(u *Upserter) {
		u.logger = logger
	}
}

// WithCommitHook registers a callback invoked after every successful checkpoint
// with the number of rows it made durable.
func WithCommitHook(fn func(rows int)) Option {
	return func(u *Upserter) {
		u.onCommit = fn
	}
}

// Upserter buffers writes in one transaction and commits every batchSize written
// rows. Row-level skips never move the commit boundary; a store error rolls back
// the open batch and only that batch is lost.
type Upserter struct {
	store     Store
	batchSize int
	logger    *zap.Logger
	onCommit  func(rows int)

	batch     Batch
	written   int
	pending   map[string]*domain.Tally
	committed map[string]*domain.Tally
}

// New constructs an Upserter; batchSize < 1 commits after every row.
func New(store Store, batchSize int, opts ...Option) *Upserter {
	if batchSize < 1 {
		batchSize = 1
	}
	u := &Upserter{
		store:     store,
		batchSize: batchSize,
		logger:    zap.NewNop(),
		pending:   make(map[string]*domain.Tally),
		committed: make(map[string]*domain.Tally),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WriteExercise inserts a session unconditionally. Sessions have no natural
// dedup key, so re-ingesting the same source duplicates them.
func (u *Upserter) WriteExercise(ctx context.Context, rec domain.ExerciseRecord) domain.RowResult {
	batch, err := u.open(ctx)
	if err != nil {
		return domain.Fatal(err)
	}
	if err := batch.InsertExercise(ctx, rec); err != nil {
		return domain.Fatal(u.fail(ctx, fmt.Errorf("insert exercise for user %d: %w", rec.UserID, err)))
	}
	return u.record(ctx, TableExerciseRecords, domain.Inserted(), true)
}

// WriteBodyMetric inserts a measurement unless one exists for the same user and
// date. BMI is always recomputed here.
func (u *Upserter) WriteBodyMetric(ctx context.Context, m domain.BodyMetric) domain.RowResult {
	batch, err := u.open(ctx)
	if err != nil {
		return domain.Fatal(err)
	}
	m = m.WithComputedBMI()
	inserted, err := batch.InsertBodyMetricIfAbsent(ctx, m)
	if err != nil {
		return domain.Fatal(u.fail(ctx, fmt.Errorf("insert body metric for user %d: %w", m.UserID, err)))
	}
	if !inserted {
		return u.record(ctx, TableBodyMetrics, domain.Skipped(domain.SkipDuplicate, domain.ErrDuplicateKey), false)
	}
	return u.record(ctx, TableBodyMetrics, domain.Inserted(), true)
}

// Skip counts a row rejected before reaching the store.
func (u *Upserter) Skip(table string, res domain.RowResult) {
	u.tally(u.pending, table).Add(res)
}

// Flush commits the open batch, if any.
func (u *Upserter) Flush(ctx context.Context) error {
	if u.batch == nil {
		u.promote()
		return nil
	}
	batch := u.batch
	u.batch = nil
	rows := u.written
	u.written = 0
	if err := batch.Commit(ctx); err != nil {
		u.discard()
		return fmt.Errorf("%w: commit: %v", domain.ErrTransactionFailure, err)
	}
	u.promote()
	u.logger.Info("batch committed", zap.Int("rows", rows))
	if u.onCommit != nil {
		u.onCommit(rows)
	}
	return nil
}

// Abort rolls back the open batch, discarding its uncommitted counts.
func (u *Upserter) Abort(ctx context.Context) {
	if u.batch == nil {
		return
	}
	if err := u.batch.Rollback(ctx); err != nil && !errors.Is(err, context.Canceled) {
		u.logger.Warn("rollback failed", zap.Error(err))
	}
	u.batch = nil
	u.written = 0
	u.discard()
}

// Committed returns durable counts per table.
func (u *Upserter) Committed() map[string]domain.Tally {
	out := make(map[string]domain.Tally, len(u.committed))
	for table, t := range u.committed {
		out[table] = *t
	}
	return out
}

func (u *Upserter) open(ctx context.Context) (Batch, error) {
	if u.batch != nil {
		return u.batch, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := u.store.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin batch: %v", domain.ErrTransactionFailure, err)
	}
	u.batch = batch
	return batch, nil
}

func (u *Upserter) record(ctx context.Context, table string, res domain.RowResult, wrote bool) domain.RowResult {
	u.tally(u.pending, table).Add(res)
	if wrote {
		u.written++
	}
	if u.written >= u.batchSize {
		if err := u.Flush(ctx); err != nil {
			return domain.Fatal(err)
		}
	}
	return res
}

func (u *Upserter) fail(ctx context.Context, err error) error {
	u.Abort(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransactionFailure, err)
}

// promote moves pending tallies to committed. Skips are kept even without a
// batch, since they never depend on a commit.
func (u *Upserter) promote() {
	for table, t := range u.pending {
		u.tally(u.committed, table).Merge(*t)
	}
	u.pending = make(map[string]*domain.Tally)
}

// discard drops uncommitted writes but keeps skip counts.
func (u *Upserter) discard() {
	for table, t := range u.pending {
		u.tally(u.committed, table).Merge(domain.Tally{Skipped: t.Skipped})
	}
	u.pending = make(map[string]*domain.Tally)
}

func (u *Upserter) tally(m map[string]*domain.Tally, table string) *domain.Tally {
	t, ok := m[table]
	if !ok {
		t = &domain.Tally{}
		m[table] = t
	}
	return t
}
