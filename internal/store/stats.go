package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
)

// StatsRepository implements cache.StatsStore against the monthly-
// partitioned cache_stats table.
type StatsRepository struct {
	db db
}

func (r *StatsRepository) IncrementStat(ctx context.Context, period cache.StatsPeriod, cacheKind string, hit bool) error {
	var q string
	if hit {
		q = `
			INSERT INTO cache_stats (clinic_id, year, month, cache_kind, hits, misses)
			VALUES ($1, $2, $3, $4, 1, 0)
			ON CONFLICT (clinic_id, year, month, cache_kind)
			DO UPDATE SET hits = cache_stats.hits + 1
		`
	} else {
		q = `
			INSERT INTO cache_stats (clinic_id, year, month, cache_kind, hits, misses)
			VALUES ($1, $2, $3, $4, 0, 1)
			ON CONFLICT (clinic_id, year, month, cache_kind)
			DO UPDATE SET misses = cache_stats.misses + 1
		`
	}
	if _, err := r.db.Exec(ctx, q, period.ClinicID, period.Year, int(period.Month), cacheKind); err != nil {
		return fmt.Errorf("store: increment cache stat: %w", err)
	}
	return nil
}

func (r *StatsRepository) GetStats(ctx context.Context, period cache.StatsPeriod, cacheKind string) (cache.StatsRecord, error) {
	const q = `
		SELECT hits, misses FROM cache_stats
		WHERE clinic_id = $1 AND year = $2 AND month = $3 AND cache_kind = $4
	`
	record := cache.StatsRecord{Period: period, CacheKind: cacheKind}
	err := r.db.QueryRow(ctx, q, period.ClinicID, period.Year, int(period.Month), cacheKind).
		Scan(&record.Hits, &record.Misses)
	if err == pgx.ErrNoRows {
		return record, nil
	}
	if err != nil {
		return cache.StatsRecord{}, fmt.Errorf("store: get cache stats: %w", err)
	}
	return record, nil
}
