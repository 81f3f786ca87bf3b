// Command cache-refresher runs the periodic sweep that keeps the
// availability/schedule durable tables from growing unbounded: it evicts
// expired and stale availability rows, prunes old slot rejections and
// recently-failed-attempt records, and trims low-usage service-match cache
// entries. It holds no request-serving state and never touches the PMS.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
	appconfig "github.com/wolfman30/clinicvoice-core/internal/config"
	"github.com/wolfman30/clinicvoice-core/internal/store"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// lowUsageThreshold is the minimum service-match usage count kept on a
// sweep; anything whose cumulative usage count is below this is evicted and
// re-derived from the matcher on next use.
const lowUsageThreshold = 2

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicvoice-core cache refresher", "interval", cfg.CacheRefresherInterval.String())

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	coreStore := store.New(pool)

	ticker := time.NewTicker(cfg.CacheRefresherInterval)
	defer ticker.Stop()

	runSweep(ctx, coreStore, redisClient, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runSweep(ctx, coreStore, redisClient, logger)
		case <-stop:
			logger.Info("cache refresher shutting down")
			return
		}
	}
}

func runSweep(ctx context.Context, coreStore *store.Store, redisClient *redis.Client, logger *logging.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	now := time.Now().UTC()

	expired, err := coreStore.Availability().DeleteExpiredBefore(sweepCtx, now.Add(-1*time.Hour))
	if err != nil {
		logger.Error("cache refresher: delete expired availability failed", "error", err)
	} else if expired > 0 {
		logger.Info("cache refresher: evicted expired availability rows", "count", expired)
	}

	stale, err := coreStore.Availability().DeleteStaleBefore(sweepCtx, now.Add(-24*time.Hour))
	if err != nil {
		logger.Error("cache refresher: delete stale availability failed", "error", err)
	} else if stale > 0 {
		logger.Info("cache refresher: evicted stale availability rows", "count", stale)
	}

	rejectedCutoff := now.Add(-24 * time.Hour)
	rejected, err := coreStore.Schedules().DeleteRejectedBefore(sweepCtx, rejectedCutoff)
	if err != nil {
		logger.Error("cache refresher: delete old rejections failed", "error", err)
	} else if rejected > 0 {
		logger.Info("cache refresher: pruned old slot rejections", "count", rejected)
	}

	failedCutoff := now.Add(-2 * time.Hour)
	failed, err := coreStore.Schedules().DeleteFailedBefore(sweepCtx, failedCutoff)
	if err != nil {
		logger.Error("cache refresher: delete old failed-attempt records failed", "error", err)
	} else if failed > 0 {
		logger.Info("cache refresher: pruned old failed-attempt records", "count", failed)
	}

	clinicIDs, err := coreStore.Catalog().ListClinicIDs(sweepCtx)
	if err != nil {
		logger.Error("cache refresher: list clinics failed", "error", err)
		return
	}

	serviceMatchCache := cache.NewServiceMatchCache(redisClient, logger)
	for _, clinicID := range clinicIDs {
		if err := serviceMatchCache.DeleteLowUsage(sweepCtx, clinicID, lowUsageThreshold); err != nil {
			logger.Warn("cache refresher: evict low-usage service matches failed", "clinic_id", clinicID, "error", err)
		}
	}
}
