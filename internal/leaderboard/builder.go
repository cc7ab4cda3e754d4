// Package leaderboard ranks period-restricted rollups and replaces stored
// snapshots atomically per (type, period).
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/events"
	"example.com/consolidation/internal/rollup"
)

// Store loads canonical history and swaps snapshots.
type Store interface {
	LoadActivity(ctx context.Context, period *domain.Period) ([]rollup.Activity, error)
	ReplaceLeaderboard(ctx context.Context, lb domain.Leaderboard, evt events.LeaderboardRefreshed) error
}

// Mirror receives every committed snapshot. Mirror failures never fail a build.
type Mirror interface {
	Publish(ctx context.Context, lb domain.Leaderboard) error
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMirror publishes committed snapshots to m.
func WithMirror(m Mirror) Option {
	return func(b *Builder) {
		b.mirror = m
	}
}

// WithClock overrides the time source used for refresh events.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// Builder recomputes leaderboards from canonical rows only.
type Builder struct {
	store  Store
	engine rollup.Engine
	topN   int
	mirror Mirror
	logger *zap.Logger
	now    func() time.Time
}

// NewBuilder constructs a Builder; topN < 1 keeps every ranked user.
func NewBuilder(store Store, engine rollup.Engine, topN int, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		engine: engine,
		topN:   topN,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build replaces the snapshot of every requested type for period. With no
// types it builds all of them. Snapshots replaced before a failure stay.
func (b *Builder) Build(ctx context.Context, runID string, period domain.Period, types ...domain.LeaderboardType) ([]domain.Leaderboard, error) {
	if len(types) == 0 {
		types = domain.LeaderboardTypes()
	}

	activities, err := b.store.LoadActivity(ctx, &period)
	if err != nil {
		return nil, fmt.Errorf("%w: load activity for %s: %v", domain.ErrTransactionFailure, period, err)
	}
	rollups := b.engine.ComputeAll(activities)

	built := make([]domain.Leaderboard, 0, len(types))
	for _, t := range types {
		lb := Rank(t, period, rollups, b.topN)
		if err := b.store.ReplaceLeaderboard(ctx, lb, b.refreshed(runID, lb)); err != nil {
			return built, fmt.Errorf("%w: replace %s leaderboard for %s: %v", domain.ErrTransactionFailure, t, period, err)
		}
		built = append(built, lb)
		b.logger.Info("leaderboard replaced",
			zap.String("type", string(t)),
			zap.String("period", period.String()),
			zap.Int("entries", len(lb.Entries)),
		)

		if b.mirror != nil {
			if err := b.mirror.Publish(ctx, lb); err != nil {
				b.logger.Warn("leaderboard mirror failed", zap.String("type", string(t)), zap.Error(err))
			}
		}
	}
	return built, nil
}

func (b *Builder) refreshed(runID string, lb domain.Leaderboard) events.LeaderboardRefreshed {
	evt := events.LeaderboardRefreshed{
		RunID:           runID,
		LeaderboardType: string(lb.Type),
		PeriodStart:     lb.Period.Start.Format(domain.DateLayout),
		PeriodEnd:       lb.Period.End.Format(domain.DateLayout),
		Entries:         len(lb.Entries),
		RefreshedAt:     b.now().UTC(),
	}
	if len(lb.Entries) > 0 {
		leader := lb.Entries[0].UserID
		evt.LeaderUserID = &leader
	}
	return evt
}

// Rank orders users by descending value with ties broken by ascending user ID
// and assigns ordinal ranks from 1. Users whose value is zero are left out.
func Rank(t domain.LeaderboardType, period domain.Period, rollups []rollup.Rollup, topN int) domain.Leaderboard {
	type scored struct {
		userID int64
		value  float64
	}
	candidates := make([]scored, 0, len(rollups))
	for _, r := range rollups {
		value, ok := r.LeaderboardValue(t)
		if !ok || value <= 0 {
			continue
		}
		candidates = append(candidates, scored{userID: r.UserID, value: value})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].value != candidates[j].value {
			return candidates[i].value > candidates[j].value
		}
		return candidates[i].userID < candidates[j].userID
	})
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}

	lb := domain.Leaderboard{Type: t, Period: period, Entries: make([]domain.LeaderboardEntry, 0, len(candidates))}
	for i, c := range candidates {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{
			Type:        t,
			UserID:      c.userID,
			Rank:        i + 1,
			Value:       c.value,
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
		})
	}
	return lb
}
