// Package backfill re-stamps exercise creation times onto the session's own
// calendar date so time-of-day reporting has plausible values.
package backfill

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"example.com/consolidation/internal/domain"
)

// DefaultSeed reproduces the historical stamping.
const DefaultSeed int64 = 20260212

const (
	firstHour = 6
	lastHour  = 22
)

// Candidate is an exercise row whose created_at is missing or on another date.
type Candidate struct {
	ID           int64
	ExerciseDate time.Time
}

// Restamp is the new creation time for one row.
type Restamp struct {
	ID        int64
	CreatedAt time.Time
}

// Store lists candidates in ID order and applies restamps in one transaction.
type Store interface {
	StaleCreatedAt(ctx context.Context, afterID int64, limit int) ([]Candidate, error)
	RestampCreatedAt(ctx context.Context, stamps []Restamp) error
}

// Option configures a Backfiller.
type Option func(*Backfiller)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backfiller) {
		b.logger = logger
	}
}

// Backfiller walks candidates in batches. The same seed and the same
// candidate order always yield the same stamps.
type Backfiller struct {
	store     Store
	rng       *rand.Rand
	batchSize int
	logger    *zap.Logger
}

// New constructs a Backfiller. A nil rng is seeded with DefaultSeed.
func New(store Store, rng *rand.Rand, batchSize int, opts ...Option) *Backfiller {
	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSeed))
	}
	if batchSize < 1 {
		batchSize = 2000
	}
	b := &Backfiller{store: store, rng: rng, batchSize: batchSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run restamps every candidate and returns how many rows changed. Batches
// committed before an error stay committed.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	var (
		afterID int64
		updated int
	)
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		candidates, err := b.store.StaleCreatedAt(ctx, afterID, b.batchSize)
		if err != nil {
			return updated, err
		}
		if len(candidates) == 0 {
			break
		}

		stamps := make([]Restamp, 0, len(candidates))
		for _, c := range candidates {
			stamps = append(stamps, Restamp{ID: c.ID, CreatedAt: b.Stamp(c.ExerciseDate)})
		}
		if err := b.store.RestampCreatedAt(ctx, stamps); err != nil {
			return updated, err
		}
		updated += len(stamps)
		afterID = candidates[len(candidates)-1].ID
		b.logger.Info("created_at batch restamped", zap.Int("rows", len(stamps)), zap.Int64("last_id", afterID))
	}
	return updated, nil
}

// Stamp picks a time of day between 06:00:00 and 22:59:59 on date.
func (b *Backfiller) Stamp(date time.Time) time.Time {
	hour := firstHour + b.rng.Intn(lastHour-firstHour+1)
	minute := b.rng.Intn(60)
	second := b.rng.Intn(60)
	return domain.Day(date).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
}
