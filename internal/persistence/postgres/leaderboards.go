package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/events"
	"example.com/consolidation/internal/outbox"
)

// ReplaceLeaderboard swaps the entry set for (type, period) and records the
// refresh event inside a single transaction, so readers see either the old
// snapshot or the new one.
func (s *Store) ReplaceLeaderboard(ctx context.Context, lb domain.Leaderboard, evt events.LeaderboardRefreshed) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`DELETE FROM leaderboards WHERE leaderboard_type = $1 AND period_start = $2 AND period_end = $3`,
		string(lb.Type), lb.Period.Start, lb.Period.End,
	)
	if err != nil {
		return err
	}

	if len(lb.Entries) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboards"},
			[]string{"leaderboard_type", "user_id", "rank", "value", "period_start", "period_end"},
			pgx.CopyFromSlice(len(lb.Entries), func(i int) ([]any, error) {
				e := lb.Entries[i]
				return []any{string(lb.Type), e.UserID, e.Rank, e.Value, lb.Period.Start, lb.Period.End}, nil
			}),
		)
		if err != nil {
			return err
		}
	}

	aggregateID := fmt.Sprintf("%s:%s", lb.Type, lb.Period)
	err = outbox.Enqueue(ctx, tx, outbox.Envelope{
		AggregateType: "leaderboard",
		AggregateID:   aggregateID,
		EventType:     events.TypeLeaderboardRefreshed,
		PartitionKey:  string(lb.Type),
		DedupeKey:     fmt.Sprintf("%s:%s:%s", events.TypeLeaderboardRefreshed, evt.RunID, aggregateID),
		Payload:       evt,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Leaderboard reads back the stored snapshot for (type, period) in rank order.
func (s *Store) Leaderboard(ctx context.Context, t domain.LeaderboardType, period domain.Period) ([]domain.LeaderboardEntry, error) {
	const query = `SELECT leaderboard_type, user_id, rank, value, period_start, period_end
        FROM leaderboards
        WHERE leaderboard_type = $1 AND period_start = $2 AND period_end = $3
        ORDER BY rank`

	rows, err := s.pool.Query(ctx, query, string(t), period.Start, period.End)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var (
			e   domain.LeaderboardEntry
			typ string
		)
		err := row.Scan(&typ, &e.UserID, &e.Rank, &e.Value, &e.PeriodStart, &e.PeriodEnd)
		e.Type = domain.LeaderboardType(typ)
		return e, err
	})
}
