package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/events"
	"example.com/consolidation/internal/outbox"
)

// ListAchievements returns the achievement catalogue ordered by ID. Rows with
// an unrecognised type are returned with the raw type so the evaluator can
// report them.
func (s *Store) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, achievement_name, description, achievement_type, threshold_value FROM achievements ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Achievement, error) {
		var (
			a   domain.Achievement
			typ string
		)
		if err := row.Scan(&a.ID, &a.Name, &a.Description, &typ, &a.Threshold); err != nil {
			return a, err
		}
		if parsed, err := domain.ParseAchievementType(typ); err == nil {
			a.Type = parsed
		} else {
			a.Type = domain.AchievementType(typ)
		}
		return a, nil
	})
}

// UnlockIfAbsent inserts the (user, achievement) pair unless it already exists
// and reports whether a row was created. The unlock event is only recorded
// for new rows. The run ID is part of the dedupe key because user IDs restart
// after a full reset while the outbox is kept.
func (s *Store) UnlockIfAbsent(ctx context.Context, ua domain.UserAchievement, evt events.AchievementUnlocked) (created bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES ($1,$2,$3)
         ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		ua.UserID, ua.AchievementID, ua.UnlockedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	aggregateID := fmt.Sprintf("%d:%d", ua.UserID, ua.AchievementID)
	err = outbox.Enqueue(ctx, tx, outbox.Envelope{
		AggregateType: "user_achievement",
		AggregateID:   aggregateID,
		EventType:     events.TypeAchievementUnlocked,
		PartitionKey:  strconv.FormatInt(ua.UserID, 10),
		DedupeKey:     fmt.Sprintf("%s:%s:%s", events.TypeAchievementUnlocked, evt.RunID, aggregateID),
		Payload:       evt,
	})
	if err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// UserAchievements lists the unlocks of one user ordered by achievement ID.
func (s *Store) UserAchievements(ctx context.Context, userID int64) ([]domain.UserAchievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, achievement_id, unlocked_at FROM user_achievements WHERE user_id = $1 ORDER BY achievement_id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserAchievement, error) {
		var ua domain.UserAchievement
		err := row.Scan(&ua.UserID, &ua.AchievementID, &ua.UnlockedAt)
		return ua, err
	})
}
