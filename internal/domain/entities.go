// Package domain holds the canonical entities of the consolidated fitness store
// together with the row outcome and error taxonomy shared by the pipeline stages.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Role enumerates account roles.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleCoach   Role = "COACH"
	RoleAdmin   Role = "ADMIN"
)

// Gender is optional; the zero value means unknown.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Goal is the declared fitness goal; the zero value means none declared.
type Goal string

const (
	GoalWeightLoss Goal = "WEIGHT_LOSS"
	GoalFatLoss    Goal = "FAT_LOSS"
	GoalMuscleGain Goal = "MUSCLE_GAIN"
)

// User is the canonical identity. ID and NaturalKey never change once assigned.
type User struct {
	ID         int64
	NaturalKey string
	Username   string
	Email      string
	Role       Role
	Age        *int
	Gender     Gender
	Goal       Goal
	HeightCM   *float64
	WeightKG   *float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExerciseRecord is one logged session.
type ExerciseRecord struct {
	ID              int64
	UserID          int64
	ExerciseType    string
	ExerciseDate    time.Time
	DurationMinutes int
	CaloriesBurned  float64
	AvgHeartRate    *int
	MaxHeartRate    *int
	EquipmentUsed   string
	CreatedAt       time.Time
}

// BodyMetric is one body-composition measurement; (UserID, MeasurementDate) is unique.
type BodyMetric struct {
	ID                int64
	UserID            int64
	MeasurementDate   time.Time
	WeightKG          float64
	BodyFatPercentage *float64
	HeightCM          *float64
	BMI               *float64
	MuscleMassKG      *float64
	CreatedAt         time.Time
}

// WithComputedBMI returns a copy whose BMI is derived from weight and height.
// A missing or non-positive height clears BMI rather than keeping a source value.
func (m BodyMetric) WithComputedBMI() BodyMetric {
	m.BMI = nil
	if m.HeightCM == nil || *m.HeightCM <= 0 || m.WeightKG <= 0 {
		return m
	}
	meters := *m.HeightCM / 100
	bmi := math.Round(m.WeightKG/(meters*meters)*100) / 100
	m.BMI = &bmi
	return m
}

// AchievementType names the rollup value an achievement threshold is compared with.
type AchievementType string

const (
	AchievementExerciseCount   AchievementType = "EXERCISE_COUNT"
	AchievementTotalCalories   AchievementType = "TOTAL_CALORIES"
	AchievementSingleDuration  AchievementType = "SINGLE_DURATION"
	AchievementConsecutiveDays AchievementType = "CONSECUTIVE_DAYS"
	AchievementRunningDistance AchievementType = "RUNNING_DISTANCE"
	AchievementWeightLoss      AchievementType = "WEIGHT_LOSS"
	AchievementFatLoss         AchievementType = "FAT_LOSS"
	AchievementMuscleGain      AchievementType = "MUSCLE_GAIN"
)

var achievementAliases = map[string]AchievementType{
	"CALORIES": AchievementTotalCalories,
	"DURATION": AchievementSingleDuration,
	"DISTANCE": AchievementRunningDistance,
}

// ParseAchievementType accepts the canonical names plus the legacy short aliases.
func ParseAchievementType(raw string) (AchievementType, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch t := AchievementType(value); t {
	case AchievementExerciseCount, AchievementTotalCalories, AchievementSingleDuration,
		AchievementConsecutiveDays, AchievementRunningDistance, AchievementWeightLoss,
		AchievementFatLoss, AchievementMuscleGain:
		return t, nil
	}
	if t, ok := achievementAliases[value]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown achievement type %q", raw)
}

// Achievement is a static threshold definition.
type Achievement struct {
	ID          int64
	Name        string
	Description string
	Type        AchievementType
	Threshold   float64
}

// UserAchievement records an unlock. UnlockedAt is a placeholder unless a real
// crossing time was observed and must not be read as chronology.
type UserAchievement struct {
	UserID        int64
	AchievementID int64
	UnlockedAt    time.Time
}

// LeaderboardType names a ranked aggregate.
type LeaderboardType string

const (
	LeaderboardTotalDuration   LeaderboardType = "TOTAL_DURATION"
	LeaderboardTotalCalories   LeaderboardType = "TOTAL_CALORIES"
	LeaderboardExerciseCount   LeaderboardType = "EXERCISE_COUNT"
	LeaderboardConsecutiveDays LeaderboardType = "CONSECUTIVE_DAYS"
	LeaderboardWeightLoss      LeaderboardType = "WEIGHT_LOSS"
)

// LeaderboardTypes lists every supported type in build order.
func LeaderboardTypes() []LeaderboardType {
	return []LeaderboardType{
		LeaderboardTotalDuration,
		LeaderboardTotalCalories,
		LeaderboardExerciseCount,
		LeaderboardConsecutiveDays,
		LeaderboardWeightLoss,
	}
}

// ParseLeaderboardType validates a leaderboard type name.
func ParseLeaderboardType(raw string) (LeaderboardType, error) {
	value := LeaderboardType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, t := range LeaderboardTypes() {
		if t == value {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown leaderboard type %q", raw)
}

// LeaderboardEntry is one ranked row of a snapshot.
type LeaderboardEntry struct {
	Type        LeaderboardType
	UserID      int64
	Rank        int
	Value       float64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Leaderboard is the complete entry set for one (type, period) key.
type Leaderboard struct {
	Type    LeaderboardType
	Period  Period
	Entries []LeaderboardEntry
}
