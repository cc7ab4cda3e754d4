package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/consolidation/internal/achievement"
	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/upsert"
)

// TableUsers is the tally key of reconciled user rows.
const TableUsers = "users"

// LeaderboardSummary describes one replaced snapshot.
type LeaderboardSummary struct {
	Type    domain.LeaderboardType
	Period  domain.Period
	Entries int
}

// Summary reports what a run made durable. After a fatal error it holds the
// counts committed before the failure.
type Summary struct {
	RunID        string
	StartedAt    time.Time
	Elapsed      time.Duration
	Reset        ResetMode
	Tables       map[string]domain.Tally
	Leaderboards []LeaderboardSummary
	Achievements achievement.Result
	Backfilled   int
}

// Table returns the tally for name, empty when the table was not touched.
func (s Summary) Table(name string) domain.Tally {
	return s.Tables[name]
}

// Render prints the summary as aligned tables.
func (s Summary) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\tstarted %s\telapsed %s\treset %s\n",
		s.RunID, s.StartedAt.UTC().Format(time.RFC3339), s.Elapsed.Round(time.Millisecond), s.Reset)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TABLE\tINSERTED\tUPDATED\tSKIPPED\tREASONS")
	for _, name := range s.tableNames() {
		t := s.Tables[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", name, t.Inserted, t.Updated, t.SkippedTotal(), reasons(t))
	}

	if len(s.Leaderboards) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "LEADERBOARD\tPERIOD\tENTRIES")
		for _, lb := range s.Leaderboards {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", lb.Type, lb.Period, lb.Entries)
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "achievements unlocked\t%d\n", s.Achievements.Unlocked)
	fmt.Fprintf(tw, "achievements already unlocked\t%d\n", s.Achievements.AlreadyUnlocked)
	if s.Achievements.UnknownTypes > 0 {
		fmt.Fprintf(tw, "achievements with unknown type\t%d\n", s.Achievements.UnknownTypes)
	}
	if s.Backfilled > 0 {
		fmt.Fprintf(tw, "created_at backfilled\t%d\n", s.Backfilled)
	}
	return tw.Flush()
}

// tableNames lists canonical tables first, in write order, then anything else.
func (s Summary) tableNames() []string {
	known := []string{TableUsers, upsert.TableExerciseRecords, upsert.TableBodyMetrics}
	names := make([]string, 0, len(s.Tables))
	for _, name := range known {
		if _, ok := s.Tables[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range s.Tables {
		if name != TableUsers && name != upsert.TableExerciseRecords && name != upsert.TableBodyMetrics {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func reasons(t domain.Tally) string {
	parts := make([]string, 0, len(t.Skipped))
	for _, reason := range t.Reasons() {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, t.Skipped[reason]))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// RunError is returned when a run stops on a fatal error. Summary carries the
// committed counts.
type RunError struct {
	Summary Summary
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed: %v", e.Summary.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
