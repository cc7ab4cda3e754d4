package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/consolidation/internal/domain"
)

var (
	rowsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consolidation",
		Subsystem: "pipeline",
		Name:      "rows_processed_total",
		Help:      "Rows handled per table, labeled by outcome.",
	}, []string{"table", "outcome"})

	rowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consolidation",
		Subsystem: "pipeline",
		Name:      "rows_skipped_total",
		Help:      "Rows skipped per table, labeled by reason.",
	}, []string{"table", "reason"})

	batchCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "consolidation",
		Subsystem: "pipeline",
		Name:      "batch_commits_total",
		Help:      "Checkpoint transactions committed by the record upserter.",
	})

	leaderboardEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consolidation",
		Subsystem: "leaderboard",
		Name:      "entries_written_total",
		Help:      "Leaderboard entries written, labeled by leaderboard type.",
	}, []string{"type"})

	achievementsUnlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "consolidation",
		Subsystem: "achievement",
		Name:      "unlocked_total",
		Help:      "New (user, achievement) unlocks.",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "consolidation",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of complete pipeline runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(rowsProcessed, rowsSkipped, batchCommits, leaderboardEntries, achievementsUnlocked, runDuration)
}

// RecordRow counts one row outcome for table.
func RecordRow(table string, res domain.RowResult) {
	rowsProcessed.WithLabelValues(table, res.Outcome.String()).Inc()
	if res.Outcome == domain.OutcomeSkipped {
		rowsSkipped.WithLabelValues(table, string(res.Reason)).Inc()
	}
}

// RecordBatchCommit counts one upserter checkpoint.
func RecordBatchCommit() {
	batchCommits.Inc()
}

// RecordLeaderboard counts the entries of one replaced snapshot.
func RecordLeaderboard(lb domain.Leaderboard) {
	leaderboardEntries.WithLabelValues(string(lb.Type)).Add(float64(len(lb.Entries)))
}

// RecordUnlocks counts newly created unlocks.
func RecordUnlocks(n int) {
	if n <= 0 {
		return
	}
	achievementsUnlocked.Add(float64(n))
}

// ObserveRun records a finished run.
func ObserveRun(elapsed time.Duration) {
	runDuration.Observe(elapsed.Seconds())
}
