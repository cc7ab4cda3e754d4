package leaderboard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"example.com/consolidation/internal/domain"
)

// RedisMirror keeps one sorted set per snapshot, scored by value.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror wraps an existing client.
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// Key names the sorted set of one (type, period) snapshot.
func Key(t domain.LeaderboardType, period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:%s:%s", t, period.Start.Format(domain.DateLayout), period.End.Format(domain.DateLayout))
}

// Publish replaces the sorted set in one MULTI/EXEC so readers never see a
// partial snapshot.
func (m *RedisMirror) Publish(ctx context.Context, lb domain.Leaderboard) error {
	key := Key(lb.Type, lb.Period)
	members := make([]redis.Z, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		members = append(members, redis.Z{Score: e.Value, Member: strconv.FormatInt(e.UserID, 10)})
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}
	return nil
}
