package postgres

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/rollup"
)

// LoadActivity returns the canonical history of every user that has at least
// one exercise or body metric row, ordered by user ID. A nil period loads all
// history; otherwise both tables are restricted to the period's dates.
func (s *Store) LoadActivity(ctx context.Context, period *domain.Period) ([]rollup.Activity, error) {
	var start, end any
	if period != nil {
		start, end = period.Start, period.End
	}

	byUser := make(map[int64]*rollup.Activity)
	get := func(userID int64) *rollup.Activity {
		a, ok := byUser[userID]
		if !ok {
			a = &rollup.Activity{UserID: userID}
			byUser[userID] = a
		}
		return a
	}

	const exerciseQuery = `SELECT id, user_id, exercise_type, exercise_date, duration_minutes, calories_burned, avg_heart_rate, max_heart_rate, equipment_used, created_at
        FROM exercise_records
        WHERE ($1::date IS NULL OR exercise_date >= $1::date)
          AND ($2::date IS NULL OR exercise_date <= $2::date)
        ORDER BY user_id, exercise_date, id`

	rows, err := s.pool.Query(ctx, exerciseQuery, start, end)
	if err != nil {
		return nil, err
	}
	exercises, err := pgx.CollectRows(rows, scanExercise)
	if err != nil {
		return nil, err
	}
	for _, rec := range exercises {
		a := get(rec.UserID)
		a.Exercises = append(a.Exercises, rec)
	}

	const metricQuery = `SELECT id, user_id, measurement_date, weight_kg, body_fat_percentage, height_cm, bmi, muscle_mass_kg, created_at
        FROM body_metrics
        WHERE ($1::date IS NULL OR measurement_date >= $1::date)
          AND ($2::date IS NULL OR measurement_date <= $2::date)
        ORDER BY user_id, measurement_date`

	rows, err = s.pool.Query(ctx, metricQuery, start, end)
	if err != nil {
		return nil, err
	}
	metrics, err := pgx.CollectRows(rows, scanBodyMetric)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics {
		a := get(m.UserID)
		a.BodyMetrics = append(a.BodyMetrics, m)
	}

	out := make([]rollup.Activity, 0, len(byUser))
	for _, a := range byUser {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func scanExercise(row pgx.CollectableRow) (domain.ExerciseRecord, error) {
	var (
		rec       domain.ExerciseRecord
		equipment *string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.ExerciseType, &rec.ExerciseDate, &rec.DurationMinutes,
		&rec.CaloriesBurned, &rec.AvgHeartRate, &rec.MaxHeartRate, &equipment, &rec.CreatedAt)
	rec.EquipmentUsed = derefString(equipment)
	return rec, err
}

func scanBodyMetric(row pgx.CollectableRow) (domain.BodyMetric, error) {
	var m domain.BodyMetric
	err := row.Scan(&m.ID, &m.UserID, &m.MeasurementDate, &m.WeightKG, &m.BodyFatPercentage,
		&m.HeightCM, &m.BMI, &m.MuscleMassKG, &m.CreatedAt)
	return m, err
}
