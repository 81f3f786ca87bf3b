package cache

import (
	"context"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// StatsPeriod identifies the calendar month a cache-stats row belongs to, so
// the durable stats table can be partitioned monthly without unbounded
// growth in a single table.
type StatsPeriod struct {
	ClinicID ids.ClinicID
	Year     int
	Month    time.Month
}

func periodFor(clinicID ids.ClinicID, at time.Time) StatsPeriod {
	return StatsPeriod{ClinicID: clinicID, Year: at.Year(), Month: at.Month()}
}

// StatsRecord aggregates hit/miss counts for one cache kind within one
// clinic's monthly partition.
type StatsRecord struct {
	Period    StatsPeriod
	CacheKind string // "availability", "booking_context", "patient", "service_match"
	Hits      int64
	Misses    int64
}

// StatsStore persists monthly-partitioned cache statistics. Implemented by
// internal/store against a single Postgres cache_stats table with one row
// per (clinic, year, month, cache kind).
type StatsStore interface {
	IncrementStat(ctx context.Context, period StatsPeriod, cacheKind string, hit bool) error
	GetStats(ctx context.Context, period StatsPeriod, cacheKind string) (StatsRecord, error)
}

// StatsRecorder wraps a StatsStore so a caller can report a cache hit or
// miss without knowing about monthly partitioning. The Get methods of the
// four caches do not call it.
type StatsRecorder struct {
	store  StatsStore
	clock  func() time.Time
	logger *logging.Logger
}

func NewStatsRecorder(store StatsStore, logger *logging.Logger) *StatsRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsRecorder{store: store, clock: time.Now, logger: logger}
}

// Record reports a hit or miss for cacheKind in clinicID's current monthly
// partition. A nil store or a recording failure is swallowed: statistics
// are observability, not correctness.
func (r *StatsRecorder) Record(ctx context.Context, clinicID ids.ClinicID, cacheKind string, hit bool) {
	if r == nil || r.store == nil {
		return
	}
	period := periodFor(clinicID, r.clock())
	if err := r.store.IncrementStat(ctx, period, cacheKind, hit); err != nil {
		r.logger.Warn("cache: failed to record stats", "cache_kind", cacheKind, "error", err)
	}
}
