package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/upsert"
)

// BeginBatch opens one checkpoint transaction for canonical record writes.
func (s *Store) BeginBatch(ctx context.Context) (upsert.Batch, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &recordBatch{tx: tx}, nil
}

type recordBatch struct {
	tx pgx.Tx
}

func (b *recordBatch) InsertExercise(ctx context.Context, rec domain.ExerciseRecord) error {
	const stmt = `INSERT INTO exercise_records (user_id, exercise_type, exercise_date, duration_minutes, calories_burned, avg_heart_rate, max_heart_rate, equipment_used)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := b.tx.Exec(ctx, stmt,
		rec.UserID,
		rec.ExerciseType,
		domain.Day(rec.ExerciseDate),
		rec.DurationMinutes,
		rec.CaloriesBurned,
		rec.AvgHeartRate,
		rec.MaxHeartRate,
		nullIfEmpty(rec.EquipmentUsed),
	)
	return err
}

func (b *recordBatch) InsertBodyMetricIfAbsent(ctx context.Context, m domain.BodyMetric) (bool, error) {
	const stmt = `INSERT INTO body_metrics (user_id, measurement_date, weight_kg, body_fat_percentage, height_cm, bmi, muscle_mass_kg)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (user_id, measurement_date) DO NOTHING`

	tag, err := b.tx.Exec(ctx, stmt,
		m.UserID,
		domain.Day(m.MeasurementDate),
		m.WeightKG,
		m.BodyFatPercentage,
		m.HeightCM,
		m.BMI,
		m.MuscleMassKG,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (b *recordBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *recordBatch) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}
