// Package achievement unlocks threshold achievements from all-time rollups.
package achievement

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/events"
	"example.com/consolidation/internal/rollup"
)

// Store is the persistence the evaluator needs. UnlockIfAbsent must be a
// single idempotent insert keyed by (user, achievement).
type Store interface {
	LoadActivity(ctx context.Context, period *domain.Period) ([]rollup.Activity, error)
	ListAchievements(ctx context.Context) ([]domain.Achievement, error)
	UnlockIfAbsent(ctx context.Context, ua domain.UserAchievement, evt events.AchievementUnlocked) (bool, error)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithClock sets the unlock timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithJitter moves each unlock timestamp back by a random offset of up to
// window, drawn from rng. Unlock timestamps are placeholders either way.
func WithJitter(rng *rand.Rand, window time.Duration) Option {
	return func(e *Evaluator) {
		e.rng = rng
		e.jitter = window
	}
}

// Result counts evaluation outcomes.
type Result struct {
	Unlocked        int
	AlreadyUnlocked int
	UnknownTypes    int
}

// Evaluator compares rollup values with achievement thresholds.
type Evaluator struct {
	store  Store
	engine rollup.Engine
	logger *zap.Logger
	now    func() time.Time
	rng    *rand.Rand
	jitter time.Duration
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(store Store, engine rollup.Engine, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  store,
		engine: engine,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate unlocks every achievement whose value is at least its threshold.
// Re-running it after a successful run creates nothing and reports the pairs
// as already unlocked.
func (e *Evaluator) Evaluate(ctx context.Context, runID string) (Result, error) {
	var res Result

	catalogue, err := e.store.ListAchievements(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: list achievements: %v", domain.ErrTransactionFailure, err)
	}
	activities, err := e.store.LoadActivity(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%w: load activity: %v", domain.ErrTransactionFailure, err)
	}

	for _, r := range e.engine.ComputeAll(activities) {
		for _, a := range catalogue {
			value, ok := r.AchievementValue(a.Type)
			if !ok {
				continue
			}
			if value < a.Threshold {
				continue
			}

			unlockedAt := e.unlockTime()
			created, err := e.store.UnlockIfAbsent(ctx,
				domain.UserAchievement{UserID: r.UserID, AchievementID: a.ID, UnlockedAt: unlockedAt},
				events.AchievementUnlocked{
					RunID:           runID,
					UserID:          r.UserID,
					AchievementID:   a.ID,
					AchievementType: string(a.Type),
					Threshold:       a.Threshold,
					Value:           value,
					UnlockedAt:      unlockedAt,
				},
			)
			if err != nil {
				return res, fmt.Errorf("%w: unlock %d for user %d: %v", domain.ErrTransactionFailure, a.ID, r.UserID, err)
			}
			if created {
				res.Unlocked++
				e.logger.Debug("achievement unlocked",
					zap.Int64("user_id", r.UserID), zap.String("achievement", a.Name), zap.Float64("value", value))
			} else {
				res.AlreadyUnlocked++
			}
		}
	}

	for _, a := range catalogue {
		if _, ok := (rollup.Rollup{}).AchievementValue(a.Type); !ok {
			res.UnknownTypes++
			e.logger.Warn("achievement has unknown type", zap.Int64("achievement_id", a.ID), zap.String("type", string(a.Type)))
		}
	}
	return res, nil
}

func (e *Evaluator) unlockTime() time.Time {
	t := e.now().UTC()
	if e.rng != nil && e.jitter > 0 {
		t = t.Add(-time.Duration(e.rng.Int63n(int64(e.jitter))))
	}
	return t
}
