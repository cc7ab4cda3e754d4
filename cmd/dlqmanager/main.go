package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/consolidation/internal/config"
	"example.com/consolidation/internal/logging"
	"example.com/consolidation/internal/outbox"
	persistence "example.com/consolidation/internal/persistence/postgres"
)

const (
	defaultDLQBatchSize = 50
)

func main() {
	cfg := config.Load()
	logger := logging.Must(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := persistence.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("dlq manager metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval), zap.Int("max_retries", cfg.DLQMaxRetries))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ctx.Done():
			goto shutdown
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", zap.Error(err))
			} else if processed > 0 {
				logger.Info("dlq manager processed entries", zap.Int("count", processed))
			}
		case <-stop:
			logger.Info("dlq manager received shutdown signal")
			cancel()
			goto shutdown
		}
	}

shutdown:
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
