package rollup

import "example.com/consolidation/internal/domain"

// AchievementValue resolves the rollup value an achievement type is measured by.
func (r Rollup) AchievementValue(t domain.AchievementType) (float64, bool) {
	switch t {
	case domain.AchievementExerciseCount:
		return float64(r.ExerciseCount), true
	case domain.AchievementTotalCalories:
		return r.TotalCalories, true
	case domain.AchievementSingleDuration:
		return float64(r.MaxSessionDuration), true
	case domain.AchievementConsecutiveDays:
		return float64(r.LongestStreak), true
	case domain.AchievementRunningDistance:
		return r.RunningDistanceKM, true
	case domain.AchievementWeightLoss:
		return r.Deltas.WeightLoss, true
	case domain.AchievementFatLoss:
		return r.Deltas.FatLoss, true
	case domain.AchievementMuscleGain:
		return r.Deltas.MuscleGain, true
	}
	return 0, false
}

// LeaderboardValue resolves the aggregate ranked by a leaderboard type.
func (r Rollup) LeaderboardValue(t domain.LeaderboardType) (float64, bool) {
	switch t {
	case domain.LeaderboardTotalDuration:
		return float64(r.TotalDuration), true
	case domain.LeaderboardTotalCalories:
		return r.TotalCalories, true
	case domain.LeaderboardExerciseCount:
		return float64(r.ExerciseCount), true
	case domain.LeaderboardConsecutiveDays:
		return float64(r.LongestStreak), true
	case domain.LeaderboardWeightLoss:
		return r.Deltas.WeightLoss, true
	}
	return 0, false
}
