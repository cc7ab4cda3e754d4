package domain

import (
	"errors"
	"sort"
)

// Error taxonomy. Row-level classes are recovered locally; batch-level classes are fatal.
var (
	ErrMalformedRow         = errors.New("malformed row")
	ErrUnresolvableIdentity = errors.New("unresolvable identity")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrTransactionFailure   = errors.New("transaction failure")
	ErrConnectionFailure    = errors.New("connection failure")
)

// SkipReason enumerates why a row was not written.
type SkipReason string

const (
	SkipMalformed            SkipReason = "malformed"
	SkipUnresolvableIdentity SkipReason = "unresolvable_identity"
	SkipDuplicate            SkipReason = "duplicate"
)

// Outcome is the disposition of one source row.
type Outcome uint8

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "fatal"
	}
}

// RowResult is the structured result of processing one row.
type RowResult struct {
	Outcome Outcome
	Reason  SkipReason
	Err     error
}

// Inserted reports a newly created row.
func Inserted() RowResult { return RowResult{Outcome: OutcomeInserted} }

// Updated reports an in-place update of an existing row.
func Updated() RowResult { return RowResult{Outcome: OutcomeUpdated} }

// Skipped reports a row dropped for the given reason.
func Skipped(reason SkipReason, err error) RowResult {
	return RowResult{Outcome: OutcomeSkipped, Reason: reason, Err: err}
}

// Fatal reports an error that must abort the run.
func Fatal(err error) RowResult { return RowResult{Outcome: OutcomeFatal, Err: err} }

// IsFatal reports whether the run must stop.
func (r RowResult) IsFatal() bool { return r.Outcome == OutcomeFatal }

// Classify maps an error returned by a row stage onto a RowResult. Unknown errors are fatal.
func Classify(err error) RowResult {
	switch {
	case err == nil:
		return Inserted()
	case errors.Is(err, ErrMalformedRow):
		return Skipped(SkipMalformed, err)
	case errors.Is(err, ErrUnresolvableIdentity):
		return Skipped(SkipUnresolvableIdentity, err)
	case errors.Is(err, ErrDuplicateKey):
		return Skipped(SkipDuplicate, err)
	default:
		return Fatal(err)
	}
}

// Tally accumulates row outcomes for one table.
type Tally struct {
	Inserted int
	Updated  int
	Skipped  map[SkipReason]int
}

// Add records a non-fatal result.
func (t *Tally) Add(r RowResult) {
	switch r.Outcome {
	case OutcomeInserted:
		t.Inserted++
	case OutcomeUpdated:
		t.Updated++
	case OutcomeSkipped:
		if t.Skipped == nil {
			t.Skipped = make(map[SkipReason]int)
		}
		t.Skipped[r.Reason]++
	}
}

// Merge folds other into t.
func (t *Tally) Merge(other Tally) {
	t.Inserted += other.Inserted
	t.Updated += other.Updated
	for reason, n := range other.Skipped {
		if t.Skipped == nil {
			t.Skipped = make(map[SkipReason]int)
		}
		t.Skipped[reason] += n
	}
}

// SkippedTotal sums skips across reasons.
func (t Tally) SkippedTotal() int {
	total := 0
	for _, n := range t.Skipped {
		total += n
	}
	return total
}

// Reasons returns the skip reasons seen, sorted.
func (t Tally) Reasons() []SkipReason {
	out := make([]SkipReason, 0, len(t.Skipped))
	for reason := range t.Skipped {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
