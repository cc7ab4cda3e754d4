package achievement

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/events"
	"example.com/consolidation/internal/rollup"
)

type pair struct {
	user, achievement int64
}

type stubStore struct {
	activities   []rollup.Activity
	achievements []domain.Achievement
	unlocked     map[pair]domain.UserAchievement
	events       []events.AchievementUnlocked
	err          error
}

func (s *stubStore) LoadActivity(_ context.Context, period *domain.Period) ([]rollup.Activity, error) {
	if period != nil {
		return nil, errors.New("achievements must use all-time history")
	}
	return s.activities, nil
}

func (s *stubStore) ListAchievements(context.Context) ([]domain.Achievement, error) {
	return s.achievements, nil
}

func (s *stubStore) UnlockIfAbsent(_ context.Context, ua domain.UserAchievement, evt events.AchievementUnlocked) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.unlocked == nil {
		s.unlocked = map[pair]domain.UserAchievement{}
	}
	key := pair{ua.UserID, ua.AchievementID}
	if _, ok := s.unlocked[key]; ok {
		return false, nil
	}
	s.unlocked[key] = ua
	s.events = append(s.events, evt)
	return true, nil
}

var (
	runStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	day0     = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return runStart }

func sessions(userID int64, calories ...float64) []domain.ExerciseRecord {
	out := make([]domain.ExerciseRecord, 0, len(calories))
	for i, c := range calories {
		out = append(out, domain.ExerciseRecord{
			UserID:          userID,
			ExerciseType:    "Running",
			ExerciseDate:    day0.AddDate(0, 0, i),
			DurationMinutes: 30,
			CaloriesBurned:  c,
		})
	}
	return out
}

func TestEvaluateUnlocksAtExactThresholdOnce(t *testing.T) {
	store := &stubStore{
		activities: []rollup.Activity{{UserID: 1, Exercises: sessions(1, 4000, 6000)}},
		achievements: []domain.Achievement{
			{ID: 4, Name: "Calorie Crusher", Type: domain.AchievementTotalCalories, Threshold: 10000},
		},
	}
	e := NewEvaluator(store, rollup.NewEngine(0), WithClock(fixedClock))

	res, err := e.Evaluate(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, Result{Unlocked: 1}, res)
	require.Equal(t, runStart, store.unlocked[pair{1, 4}].UnlockedAt)
	require.Len(t, store.events, 1)
	require.Equal(t, 10000.0, store.events[0].Value)
	require.Equal(t, "TOTAL_CALORIES", store.events[0].AchievementType)

	res, err = e.Evaluate(context.Background(), "run-2")
	require.NoError(t, err)
	require.Equal(t, Result{AlreadyUnlocked: 1}, res)
	require.Len(t, store.unlocked, 1)
	require.Len(t, store.events, 1)
}

func TestEvaluateSkipsBelowThreshold(t *testing.T) {
	store := &stubStore{
		activities: []rollup.Activity{{UserID: 2, Exercises: sessions(2, 100)}},
		achievements: []domain.Achievement{
			{ID: 1, Type: domain.AchievementExerciseCount, Threshold: 1},
			{ID: 3, Type: domain.AchievementExerciseCount, Threshold: 50},
			{ID: 2, Type: domain.AchievementConsecutiveDays, Threshold: 7},
		},
	}
	res, err := NewEvaluator(store, rollup.NewEngine(0)).Evaluate(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Unlocked)
	require.Contains(t, store.unlocked, pair{2, 1})
}

func TestEvaluateCountsUnknownTypes(t *testing.T) {
	store := &stubStore{
		activities:   []rollup.Activity{{UserID: 1, Exercises: sessions(1, 100)}},
		achievements: []domain.Achievement{{ID: 9, Type: domain.AchievementType("STEPS"), Threshold: 1}},
	}
	res, err := NewEvaluator(store, rollup.NewEngine(0)).Evaluate(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, Result{UnknownTypes: 1}, res)
}

func TestEvaluateJitterIsSeededAndBounded(t *testing.T) {
	build := func() *stubStore {
		return &stubStore{
			activities: []rollup.Activity{
				{UserID: 1, Exercises: sessions(1, 100)},
				{UserID: 2, Exercises: sessions(2, 100)},
			},
			achievements: []domain.Achievement{{ID: 1, Type: domain.AchievementExerciseCount, Threshold: 1}},
		}
	}
	window := 30 * 24 * time.Hour

	a, b := build(), build()
	for _, s := range []*stubStore{a, b} {
		_, err := NewEvaluator(s, rollup.NewEngine(0),
			WithClock(fixedClock), WithJitter(rand.New(rand.NewSource(7)), window)).Evaluate(context.Background(), "run")
		require.NoError(t, err)
	}
	require.Equal(t, a.unlocked, b.unlocked)
	for _, ua := range a.unlocked {
		require.False(t, ua.UnlockedAt.After(runStart))
		require.True(t, ua.UnlockedAt.After(runStart.Add(-window)))
	}
}

func TestEvaluateWrapsStoreFailure(t *testing.T) {
	store := &stubStore{
		activities:   []rollup.Activity{{UserID: 1, Exercises: sessions(1, 100)}},
		achievements: []domain.Achievement{{ID: 1, Type: domain.AchievementExerciseCount, Threshold: 1}},
		err:          errors.New("deadlock detected"),
	}
	_, err := NewEvaluator(store, rollup.NewEngine(0)).Evaluate(context.Background(), "run-1")
	require.ErrorIs(t, err, domain.ErrTransactionFailure)
}
