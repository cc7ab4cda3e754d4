// Package rollup derives per-user aggregates from canonical exercise and body
// metric rows. Everything here is a pure function of its input.
package rollup

import (
	"sort"
	"strings"
	"time"

	"example.com/consolidation/internal/domain"
)

// DefaultPaceKMH is the assumed running pace used to estimate distance.
const DefaultPaceKMH = 8.0

// Activity is the canonical history of one user, optionally period-restricted by the loader.
type Activity struct {
	UserID      int64
	Exercises   []domain.ExerciseRecord
	BodyMetrics []domain.BodyMetric
}

// Rollup is the set of aggregates computed for one user.
type Rollup struct {
	UserID             int64
	ExerciseCount      int
	TotalCalories      float64
	TotalDuration      int
	MaxSessionDuration int
	LongestStreak      int
	RunningDistanceKM  float64
	Deltas             Deltas
}

// Deltas are first-to-last body composition changes, floored at zero.
type Deltas struct {
	WeightLoss float64
	FatLoss    float64
	MuscleGain float64
}

// Engine computes rollups with a fixed pace assumption.
type Engine struct {
	paceKMH float64
}

// NewEngine returns an Engine; a non-positive pace falls back to DefaultPaceKMH.
func NewEngine(paceKMH float64) Engine {
	if paceKMH <= 0 {
		paceKMH = DefaultPaceKMH
	}
	return Engine{paceKMH: paceKMH}
}

// Compute scans one user's rows.
func (e Engine) Compute(a Activity) Rollup {
	r := Rollup{UserID: a.UserID, ExerciseCount: len(a.Exercises)}

	dates := make([]time.Time, 0, len(a.Exercises))
	for _, rec := range a.Exercises {
		r.TotalCalories += rec.CaloriesBurned
		r.TotalDuration += rec.DurationMinutes
		if rec.DurationMinutes > r.MaxSessionDuration {
			r.MaxSessionDuration = rec.DurationMinutes
		}
		dates = append(dates, rec.ExerciseDate)
	}
	r.LongestStreak = LongestStreak(dates)
	r.RunningDistanceKM = RunningDistanceKM(a.Exercises, e.paceKMH)
	r.Deltas = BodyDeltas(a.BodyMetrics)
	return r
}

// ComputeAll computes a rollup per activity, preserving order.
func (e Engine) ComputeAll(activities []Activity) []Rollup {
	out := make([]Rollup, 0, len(activities))
	for _, a := range activities {
		out = append(out, e.Compute(a))
	}
	return out
}

// LongestStreak returns the longest run of calendar-consecutive days. Dates are
// deduplicated by calendar day first, so several sessions on one day count once.
func LongestStreak(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := domain.Day(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, current := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}

var runningMarkers = []string{"run", "jog", "跑"}

// IsRunning classifies an exercise type as running.
func IsRunning(exerciseType string) bool {
	lower := strings.ToLower(exerciseType)
	for _, marker := range runningMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RunningDistanceKM estimates distance for running sessions at a fixed pace.
func RunningDistanceKM(records []domain.ExerciseRecord, paceKMH float64) float64 {
	var km float64
	for _, rec := range records {
		if IsRunning(rec.ExerciseType) {
			km += float64(rec.DurationMinutes) / 60 * paceKMH
		}
	}
	return km
}

// BodyDeltas compares the earliest and latest measurement. Fewer than two rows,
// or a component missing on either end, yields zero for that component.
func BodyDeltas(metrics []domain.BodyMetric) Deltas {
	if len(metrics) < 2 {
		return Deltas{}
	}
	sorted := make([]domain.BodyMetric, len(metrics))
	copy(sorted, metrics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MeasurementDate.Before(sorted[j].MeasurementDate)
	})
	first, last := sorted[0], sorted[len(sorted)-1]

	d := Deltas{WeightLoss: floor(first.WeightKG - last.WeightKG)}
	if first.BodyFatPercentage != nil && last.BodyFatPercentage != nil {
		d.FatLoss = floor(*first.BodyFatPercentage - *last.BodyFatPercentage)
	}
	if first.MuscleMassKG != nil && last.MuscleMassKG != nil {
		d.MuscleGain = floor(*last.MuscleMassKG - *first.MuscleMassKG)
	}
	return d
}

func floor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
