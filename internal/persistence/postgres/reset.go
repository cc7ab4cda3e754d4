package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ResetDerived clears leaderboards and unlocks. Both are regenerated from
// canonical rows on the next run.
func (s *Store) ResetDerived(ctx context.Context) error {
	return s.execInTx(ctx,
		`DELETE FROM leaderboards`,
		`DELETE FROM user_achievements`,
	)
}

// ResetAll clears canonical and derived tables and restarts their sequences.
// Achievement definitions and the outbox are kept.
func (s *Store) ResetAll(ctx context.Context) error {
	return s.execInTx(ctx,
		`TRUNCATE leaderboards, user_achievements, body_metrics, exercise_records, users RESTART IDENTITY`,
	)
}

func (s *Store) execInTx(ctx context.Context, statements ...string) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	for _, stmt := range statements {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
