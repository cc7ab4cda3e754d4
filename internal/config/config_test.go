package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	require.Equal(t, 2000, cfg.BatchSize)
	require.Equal(t, 10, cfg.LeaderboardTopN)
	require.Equal(t, 30, cfg.LeaderboardPeriodDays)
	require.InDelta(t, 8.0, cfg.RunningPaceKMH, 0.0001)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "gym.local", cfg.EmailDomain)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("RUNNING_PACE_KMH", "10.5")
	t.Setenv("LEADERBOARD_TOP_N", "0")

	cfg := Load()
	require.Equal(t, 500, cfg.BatchSize)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	require.InDelta(t, 10.5, cfg.RunningPaceKMH, 0.0001)
	require.Equal(t, 0, cfg.LeaderboardTopN)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	t.Setenv("DLQ_BASE_DELAY", "soon")
	t.Setenv("RUNNING_PACE_KMH", "-3")

	cfg := Load()
	require.Equal(t, 2000, cfg.BatchSize)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
	require.InDelta(t, 8.0, cfg.RunningPaceKMH, 0.0001)
}
