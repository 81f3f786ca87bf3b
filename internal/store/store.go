// Package store is the Postgres-backed system of record: the durable half
// of the tiered cache, the booking coordinator's persistence layer, and the
// catalog (clinics, locations, practitioners, services) the matcher and
// availability engine read candidates from. There is no generated
// sqlc/Querier layer here — queries are hand-written against pgxpool,
// mirroring the teacher's internal/clinic/stats.go and internal/leads
// repositories rather than the teacher's sqlc-based internal/bookings
// package (that package's generated Querier was never checked in, so this
// store follows the pattern the rest of the teacher's code actually uses).
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the subset of pgxpool.Pool every repository method needs, so tests
// can substitute pgxmock without a real connection.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store bundles every repository backed by one shared pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store. pool must be non-nil in production; tests
// construct the narrower repositories directly with a pgxmock pool instead.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Store{pool: pool}
}

// Availability returns the durable availability-cache repository.
func (s *Store) Availability() *AvailabilityRepository { return &AvailabilityRepository{db: s.pool} }

// Stats returns the cache-statistics repository.
func (s *Store) Stats() *StatsRepository { return &StatsRepository{db: s.pool} }

// Bookings returns the booking coordinator's persistence repository.
func (s *Store) Bookings() *BookingRepository { return &BookingRepository{db: s.pool} }

// Schedules returns the schedule/rejected-slot/failed-attempt repository.
func (s *Store) Schedules() *ScheduleRepository { return &ScheduleRepository{db: s.pool} }

// Catalog returns the clinic/location/practitioner/service repository.
func (s *Store) Catalog() *CatalogRepository { return &CatalogRepository{db: s.pool} }

// Pool exposes the underlying pool for callers that need it directly.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
