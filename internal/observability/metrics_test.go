package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/domain"
)

func TestRecordRowCountsSkipReasons(t *testing.T) {
	before := testutil.ToFloat64(rowsSkipped.WithLabelValues("body_metrics", "duplicate"))
	beforeSkipped := testutil.ToFloat64(rowsProcessed.WithLabelValues("body_metrics", "skipped"))

	RecordRow("body_metrics", domain.Skipped(domain.SkipDuplicate, errors.New("exists")))
	RecordRow("body_metrics", domain.Inserted())

	require.Equal(t, before+1, testutil.ToFloat64(rowsSkipped.WithLabelValues("body_metrics", "duplicate")))
	require.Equal(t, beforeSkipped+1, testutil.ToFloat64(rowsProcessed.WithLabelValues("body_metrics", "skipped")))
}

func TestRecordLeaderboardAndUnlocks(t *testing.T) {
	before := testutil.ToFloat64(leaderboardEntries.WithLabelValues("TOTAL_CALORIES"))
	RecordLeaderboard(domain.Leaderboard{
		Type:    domain.LeaderboardTotalCalories,
		Entries: make([]domain.LeaderboardEntry, 3),
	})
	require.Equal(t, before+3, testutil.ToFloat64(leaderboardEntries.WithLabelValues("TOTAL_CALORIES")))

	unlocked := testutil.ToFloat64(achievementsUnlocked)
	RecordUnlocks(0)
	RecordUnlocks(2)
	require.Equal(t, unlocked+2, testutil.ToFloat64(achievementsUnlocked))
}

func TestObserveRunRecordsSample(t *testing.T) {
	before := histogramSampleCount(t, runDuration)
	ObserveRun(3 * time.Second)
	require.Equal(t, before+1, histogramSampleCount(t, runDuration))
}

func histogramSampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, h.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}
