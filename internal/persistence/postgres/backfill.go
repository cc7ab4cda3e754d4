package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"example.com/consolidation/internal/backfill"
)

// StaleCreatedAt pages through exercise rows whose created_at does not fall
// on exercise_date, keyed by ID.
func (s *Store) StaleCreatedAt(ctx context.Context, afterID int64, limit int) ([]backfill.Candidate, error) {
	const query = `SELECT id, exercise_date FROM exercise_records
        WHERE id > $1 AND (created_at IS NULL OR (created_at AT TIME ZONE 'UTC')::date <> exercise_date)
        ORDER BY id
        LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (backfill.Candidate, error) {
		var c backfill.Candidate
		err := row.Scan(&c.ID, &c.ExerciseDate)
		return c, err
	})
}

// RestampCreatedAt writes one batch of creation times in a single transaction.
func (s *Store) RestampCreatedAt(ctx context.Context, stamps []backfill.Restamp) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, st := range stamps {
		batch.Queue(`UPDATE exercise_records SET created_at = $1 WHERE id = $2`, st.CreatedAt, st.ID)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
