// Package pipeline runs one synchronous consolidation: reset, import from every
// source, then recompute leaderboards and achievements from canonical rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/consolidation/internal/achievement"
	"example.com/consolidation/internal/backfill"
	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/identity"
	"example.com/consolidation/internal/leaderboard"
	"example.com/consolidation/internal/normalize"
	"example.com/consolidation/internal/observability"
	"example.com/consolidation/internal/rollup"
	"example.com/consolidation/internal/source"
	"example.com/consolidation/internal/upsert"
)

// Store is every persistence port a run touches.
type Store interface {
	identity.Store
	upsert.Store
	leaderboard.Store
	achievement.Store
	backfill.Store
	ResetDerived(ctx context.Context) error
	ResetAll(ctx context.Context) error
}

// Options are the per-run choices.
type Options struct {
	RunID   string
	Reset   ResetMode
	Sources []source.Adapter
	// Period is the leaderboard window; zero means the trailing PeriodDays.
	Period            domain.Period
	PeriodDays        int
	SkipImport        bool
	Backfill          bool
	Seed              int64
	UnlockJitter      time.Duration
	BatchSize         int
	IdentityCacheSize int
	TopN              int
	PaceKMH           float64
	EmailDomain       string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock overrides the clock used for the run start, future-date checks and
// unlock timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithMirror publishes every replaced leaderboard to m.
func WithMirror(m leaderboard.Mirror) Option {
	return func(r *Runner) {
		r.mirror = m
	}
}

// Runner executes runs against one store. Runs must not overlap.
type Runner struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	mirror leaderboard.Mirror
}

// NewRunner constructs a Runner.
func NewRunner(store Store, opts ...Option) *Runner {
	r := &Runner{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run holds the state of one invocation.
type run struct {
	*Runner
	opts       Options
	summary    Summary
	users      domain.Tally
	normalizer *normalize.Normalizer
	reconciler *identity.Reconciler
	upserter   *upsert.Upserter
}

// Run executes one consolidation. On a fatal error the returned error is a
// *RunError and the summary still reports everything committed before it.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	started := r.now()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Reset == "" {
		opts.Reset = ResetNone
	}

	clock := func() time.Time { return started }
	x := &run{
		Runner:     r,
		opts:       opts,
		summary:    Summary{RunID: opts.RunID, StartedAt: started, Reset: opts.Reset, Tables: map[string]domain.Tally{}},
		normalizer: normalize.New(normalize.WithClock(clock)),
		reconciler: identity.NewReconciler(r.store, opts.IdentityCacheSize,
			identity.WithLogger(r.logger), identity.WithEmailDomain(emailDomain(opts.EmailDomain))),
		upserter: upsert.New(r.store, opts.BatchSize,
			upsert.WithLogger(r.logger),
			upsert.WithCommitHook(func(int) { observability.RecordBatchCommit() })),
	}
	logger := r.logger.With(zap.String("run_id", opts.RunID))
	logger.Info("run started", zap.String("reset", string(opts.Reset)), zap.Int("sources", len(opts.Sources)))

	err := x.execute(ctx, logger)
	x.summary.Elapsed = r.now().Sub(started)
	x.collect()
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return x.summary, &RunError{Summary: x.summary, Err: err}
	}
	observability.ObserveRun(x.summary.Elapsed)
	logger.Info("run finished", zap.Duration("elapsed", x.summary.Elapsed))
	return x.summary, nil
}

func (x *run) execute(ctx context.Context, logger *zap.Logger) error {
	if err := x.reset(ctx); err != nil {
		return err
	}

	if !x.opts.SkipImport {
		if x.opts.Reset != ResetFull && len(x.opts.Sources) > 0 {
			logger.Warn("exercise rows have no dedup key; importing a source that was already loaded duplicates its sessions")
		}
		for _, src := range x.opts.Sources {
			if err := x.importSource(ctx, logger, src); err != nil {
				x.upserter.Abort(ctx)
				return err
			}
		}
	}

	engine := rollup.NewEngine(x.opts.PaceKMH)
	period := x.period()
	builder := leaderboard.NewBuilder(x.store, engine, x.opts.TopN,
		leaderboard.WithLogger(logger), leaderboard.WithClock(x.now), leaderboard.WithMirror(x.mirror))
	built, err := builder.Build(ctx, x.opts.RunID, period)
	for _, lb := range built {
		observability.RecordLeaderboard(lb)
		x.summary.Leaderboards = append(x.summary.Leaderboards, LeaderboardSummary{Type: lb.Type, Period: lb.Period, Entries: len(lb.Entries)})
	}
	if err != nil {
		return err
	}

	evalOpts := []achievement.Option{
		achievement.WithLogger(logger),
		achievement.WithClock(func() time.Time { return x.summary.StartedAt }),
	}
	if x.opts.UnlockJitter > 0 {
		evalOpts = append(evalOpts, achievement.WithJitter(x.rng(1), x.opts.UnlockJitter))
	}
	res, err := achievement.NewEvaluator(x.store, engine, evalOpts...).Evaluate(ctx, x.opts.RunID)
	x.summary.Achievements = res
	observability.RecordUnlocks(res.Unlocked)
	if err != nil {
		return err
	}

	if x.opts.Backfill {
		n, err := backfill.New(x.store, x.rng(0), x.opts.BatchSize, backfill.WithLogger(logger)).Run(ctx)
		x.summary.Backfilled = n
		if err != nil {
			return fmt.Errorf("%w: backfill created_at: %v", domain.ErrTransactionFailure, err)
		}
	}
	return nil
}

func (x *run) reset(ctx context.Context) error {
	var err error
	switch x.opts.Reset {
	case ResetNone:
		return nil
	case ResetDerived:
		err = x.store.ResetDerived(ctx)
	case ResetFull:
		err = x.store.ResetAll(ctx)
	default:
		return fmt.Errorf("unknown reset mode %q", x.opts.Reset)
	}
	if err != nil {
		return fmt.Errorf("%w: reset %s: %v", domain.ErrTransactionFailure, x.opts.Reset, err)
	}
	return nil
}

// errStop carries a fatal row error out of an adapter callback.
type errStop struct{ err error }

func (e errStop) Error() string { return e.err.Error() }

func (x *run) importSource(ctx context.Context, logger *zap.Logger, src source.Adapter) error {
	logger = logger.With(zap.String("source", src.Name()))
	for _, kind := range source.Kinds() {
		err := src.Read(ctx, kind, func(row source.Row) error {
			if res := x.handle(ctx, row); res.IsFatal() {
				return errStop{err: res.Err}
			} else if res.Outcome == domain.OutcomeSkipped {
				logger.Debug("row skipped",
					zap.String("kind", string(row.Kind)),
					zap.Int("line", row.Line),
					zap.String("reason", string(res.Reason)),
					zap.NamedError("cause", res.Err),
				)
			}
			return nil
		})
		var stop errStop
		if errors.As(err, &stop) {
			return stop.err
		}
		if err != nil {
			return fmt.Errorf("read %s %s rows: %w", src.Name(), kind, err)
		}
		if err := x.upserter.Flush(ctx); err != nil {
			return err
		}
		logger.Info("source kind imported", zap.String("kind", string(kind)))
	}
	return nil
}

func (x *run) handle(ctx context.Context, row source.Row) domain.RowResult {
	switch row.Kind {
	case source.KindUser:
		return x.handleUser(ctx, row)
	case source.KindExercise:
		return x.handleExercise(ctx, row)
	case source.KindBodyMetric:
		return x.handleBodyMetric(ctx, row)
	}
	return domain.Skipped(domain.SkipMalformed, fmt.Errorf("%w: unknown kind %q", domain.ErrMalformedRow, row.Kind))
}

func (x *run) handleUser(ctx context.Context, row source.Row) domain.RowResult {
	var res domain.RowResult
	if u, err := x.normalizer.User(row); err != nil {
		res = domain.Classify(err)
	} else {
		_, res = x.reconciler.Reconcile(ctx, row.Source, u)
	}
	if !res.IsFatal() {
		x.users.Add(res)
		observability.RecordRow(TableUsers, res)
	}
	return res
}

func (x *run) handleExercise(ctx context.Context, row source.Row) domain.RowResult {
	ex, err := x.normalizer.Exercise(row)
	if err != nil {
		return x.skip(upsert.TableExerciseRecords, domain.Classify(err))
	}
	userID, err := x.reconciler.Resolve(ctx, row.Source, ex.Ref)
	if err != nil {
		return x.skip(upsert.TableExerciseRecords, domain.Classify(err))
	}
	res := x.upserter.WriteExercise(ctx, ex.Record(userID))
	observability.RecordRow(upsert.TableExerciseRecords, res)
	return res
}

func (x *run) handleBodyMetric(ctx context.Context, row source.Row) domain.RowResult {
	bm, err := x.normalizer.BodyMetric(row)
	if err != nil {
		return x.skip(upsert.TableBodyMetrics, domain.Classify(err))
	}
	userID, err := x.reconciler.Resolve(ctx, row.Source, bm.Ref)
	if err != nil {
		return x.skip(upsert.TableBodyMetrics, domain.Classify(err))
	}
	res := x.upserter.WriteBodyMetric(ctx, bm.Metric(userID))
	observability.RecordRow(upsert.TableBodyMetrics, res)
	return res
}

func (x *run) skip(table string, res domain.RowResult) domain.RowResult {
	if res.IsFatal() {
		return res
	}
	x.upserter.Skip(table, res)
	observability.RecordRow(table, res)
	return res
}

// collect folds committed counts into the summary.
func (x *run) collect() {
	if !x.opts.SkipImport {
		x.summary.Tables[TableUsers] = x.users
	}
	for table, t := range x.upserter.Committed() {
		x.summary.Tables[table] = t
	}
}

func (x *run) period() domain.Period {
	if !x.opts.Period.Start.IsZero() && !x.opts.Period.End.IsZero() {
		return x.opts.Period
	}
	days := x.opts.PeriodDays
	if days < 1 {
		days = 30
	}
	return domain.TrailingPeriod(x.summary.StartedAt, days)
}

// rng derives an independent deterministic stream per consumer from the run seed.
func (x *run) rng(stream int64) *rand.Rand {
	seed := x.opts.Seed
	if seed == 0 {
		seed = backfill.DefaultSeed
	}
	return rand.New(rand.NewSource(seed + stream))
}

func emailDomain(name string) string {
	if name == "" {
		return "gym.local"
	}
	return name
}
