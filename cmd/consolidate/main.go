package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/consolidation/internal/config"
	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/leaderboard"
	"example.com/consolidation/internal/logging"
	persistence "example.com/consolidation/internal/persistence/postgres"
	"example.com/consolidation/internal/pipeline"
	"example.com/consolidation/internal/source"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// sourceFlags collects repeated -source kind=dir values.
type sourceFlags []source.Adapter

func (s *sourceFlags) String() string {
	names := make([]string, 0, len(*s))
	for _, a := range *s {
		names = append(names, a.Name())
	}
	return strings.Join(names, ",")
}

func (s *sourceFlags) Set(value string) error {
	kind, dir, ok := strings.Cut(value, "=")
	if !ok || dir == "" {
		return fmt.Errorf("want kind=dir, got %q", value)
	}
	name := fmt.Sprintf("%s:%d", kind, len(*s))
	switch kind {
	case "tabular":
		*s = append(*s, source.NewTabular(name, dir))
	case "fitbit":
		*s = append(*s, source.NewFitbit(name, dir))
	default:
		return fmt.Errorf("unknown source kind %q (want tabular or fitbit)", kind)
	}
	return nil
}

type dateFlag struct {
	t time.Time
}

func (d *dateFlag) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(domain.DateLayout)
}

func (d *dateFlag) Set(value string) error {
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return fmt.Errorf("want YYYY-MM-DD: %w", err)
	}
	d.t = t
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		sources     sourceFlags
		periodStart dateFlag
		periodEnd   dateFlag
	)
	resetRaw := fs.String("reset", string(pipeline.ResetNone), "tables to clear first: none, derived or full")
	fs.Var(&sources, "source", "source as kind=dir, kind tabular or fitbit (repeatable, applied in order)")
	fs.Var(&periodStart, "period-start", "leaderboard period start (YYYY-MM-DD)")
	fs.Var(&periodEnd, "period-end", "leaderboard period end (YYYY-MM-DD)")
	skipImport := fs.Bool("skip-import", false, "only recompute leaderboards and achievements")
	backfill := fs.Bool("backfill", false, "re-stamp exercise created_at onto the exercise date")
	seed := fs.Int64("seed", 0, "seed for backfill and unlock jitter (0 uses the default)")
	jitter := fs.Duration("unlock-jitter", 0, "spread placeholder unlock timestamps back over this window")
	runID := fs.String("run-id", "", "run identifier (default: random UUID)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	reset, err := pipeline.ParseResetMode(*resetRaw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	var period domain.Period
	if !periodStart.t.IsZero() || !periodEnd.t.IsZero() {
		if periodStart.t.IsZero() || periodEnd.t.IsZero() {
			fmt.Fprintln(stderr, "-period-start and -period-end must be given together")
			return exitUsage
		}
		if period, err = domain.NewPeriod(periodStart.t, periodEnd.t); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}
	if len(sources) == 0 && !*skipImport {
		fmt.Fprintln(stderr, "at least one -source is required unless -skip-import is set")
		return exitUsage
	}

	logger := logging.Must(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := persistence.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("postgres unavailable", zap.Error(err))
		return exitFatal
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return exitFatal
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		client, err := leaderboard.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("leaderboard mirror disabled", zap.Error(err))
		} else {
			defer client.Close()
			opts = append(opts, pipeline.WithMirror(leaderboard.NewRedisMirror(client)))
		}
	}

	runner := pipeline.NewRunner(persistence.NewStore(pool), opts...)
	summary, err := runner.Run(ctx, pipeline.Options{
		RunID:             *runID,
		Reset:             reset,
		Sources:           sources,
		Period:            period,
		PeriodDays:        cfg.LeaderboardPeriodDays,
		SkipImport:        *skipImport,
		Backfill:          *backfill,
		Seed:              *seed,
		UnlockJitter:      *jitter,
		BatchSize:         cfg.BatchSize,
		IdentityCacheSize: cfg.IdentityCacheSize,
		TopN:              cfg.LeaderboardTopN,
		PaceKMH:           cfg.RunningPaceKMH,
		EmailDomain:       cfg.EmailDomain,
	})
	if renderErr := summary.Render(stdout); renderErr != nil {
		logger.Warn("summary render failed", zap.Error(renderErr))
	}
	if err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			logger.Error("run aborted", zap.Error(runErr.Err))
		}
		return exitFatal
	}
	return exitOK
}
