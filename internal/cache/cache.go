// Package cache implements the tiered cache: four logical caches (availability,
// booking context, patient, service-match), each Redis-backed with its own
// TTL and invalidation policy. The availability cache additionally persists
// through a durable store so it survives process restarts and is shared
// across workers; the other three rely on Redis's own durability.
//
// Every read degrades to a miss on error rather than blocking the caller;
// every write error is logged and swallowed. Callers never see a cache
// transport error — only "present" or "absent".
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

const (
	availabilityTTL   = 15 * time.Minute
	bookingContextTTL = time.Hour
	patientTTL        = 24 * time.Hour
	serviceMatchTTL   = 7 * 24 * time.Hour
)

// AvailabilityEntry is one cached day of slot starts for a practitioner at a
// business. IsStale is set by the Booking Coordinator the instant a write
// affecting this (practitioner, business, date) triple lands, independent of
// TTL expiry.
type AvailabilityEntry struct {
	ClinicID       ids.ClinicID
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	Date           time.Time // date-only, UTC midnight
	Slots          []time.Time
	IsStale        bool
	ExpiresAt      time.Time
}

// valid implements the canonical validity predicate: NOT is_stale AND
// expires_at > now.
func (e AvailabilityEntry) valid(now time.Time) bool {
	return !e.IsStale && e.ExpiresAt.After(now)
}

// DurableAvailabilityStore is the Postgres system-of-record backing the
// availability cache, so entries outlive process restarts and are visible
// to every worker, not just the one that populated Redis.
type DurableAvailabilityStore interface {
	GetAvailability(ctx context.Context, key AvailabilityKey) (AvailabilityEntry, bool, error)
	PutAvailability(ctx context.Context, entry AvailabilityEntry) error
	MarkStale(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) error
	InvalidateClinic(ctx context.Context, clinicID ids.ClinicID) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AvailabilityKey identifies one cached availability entry.
type AvailabilityKey struct {
	ClinicID       ids.ClinicID
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	Date           time.Time
}

// AvailabilityCache is the Redis-hot, Postgres-durable availability cache.
type AvailabilityCache struct {
	redis  *redis.Client
	store  DurableAvailabilityStore
	clock  func() time.Time
	logger *logging.Logger
	tracer trace.Tracer
}

// NewAvailabilityCache constructs an AvailabilityCache. store may be nil in
// tests that only exercise the Redis hot path; in production it must be a
// real DurableAvailabilityStore so entries survive restarts.
func NewAvailabilityCache(redisClient *redis.Client, store DurableAvailabilityStore, logger *logging.Logger) *AvailabilityCache {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityCache{
		redis:  redisClient,
		store:  store,
		clock:  time.Now,
		logger: logger,
		tracer: otel.Tracer("clinicvoice.internal.cache.availability"),
	}
}

func availabilityRedisKey(k AvailabilityKey) string {
	return fmt.Sprintf("avail:%s:%s:%s:%s", k.ClinicID, k.PractitionerID, k.BusinessID, k.Date.Format("2006-01-02"))
}

// Get returns the cached entry if present and valid. A cache read failure
// degrades to (zero value, false, nil) — never an error the caller must
// handle specially.
func (c *AvailabilityCache) Get(ctx context.Context, key AvailabilityKey) (AvailabilityEntry, bool, error) {
	ctx, span := c.tracer.Start(ctx, "cache.availability.get")
	defer span.End()

	data, err := c.redis.Get(ctx, availabilityRedisKey(key)).Bytes()
	if err == nil {
		var entry AvailabilityEntry
		if decodeErr := json.Unmarshal(data, &entry); decodeErr == nil {
			if entry.valid(c.clock()) {
				return entry, true, nil
			}
			return AvailabilityEntry{}, false, nil
		}
		c.logger.Warn("cache: failed to decode availability entry", "error", err)
	} else if err != redis.Nil {
		span.RecordError(err)
		c.logger.Warn("cache: redis read failed, degrading to miss", "error", err)
	}

	if c.store == nil {
		return AvailabilityEntry{}, false, nil
	}
	entry, found, err := c.store.GetAvailability(ctx, key)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: durable store read failed, degrading to miss", "error", err)
		return AvailabilityEntry{}, false, nil
	}
	if !found || !entry.valid(c.clock()) {
		return AvailabilityEntry{}, false, nil
	}
	if setErr := c.setRedis(ctx, key, entry); setErr != nil {
		c.logger.Warn("cache: failed to warm redis from durable store", "error", setErr)
	}
	return entry, true, nil
}

// Set writes an availability entry to both tiers. Write failures are logged
// and swallowed per the cache's failure semantics.
func (c *AvailabilityCache) Set(ctx context.Context, entry AvailabilityEntry) error {
	ctx, span := c.tracer.Start(ctx, "cache.availability.set")
	defer span.End()

	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = c.clock().Add(availabilityTTL)
	}
	key := AvailabilityKey{
		ClinicID:       entry.ClinicID,
		PractitionerID: entry.PractitionerID,
		BusinessID:     entry.BusinessID,
		Date:           entry.Date,
	}
	if err := c.setRedis(ctx, key, entry); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: failed to persist availability to redis", "error", err)
	}
	if c.store != nil {
		if err := c.store.PutAvailability(ctx, entry); err != nil {
			span.RecordError(err)
			c.logger.Warn("cache: failed to persist availability to durable store", "error", err)
		}
	}
	return nil
}

func (c *AvailabilityCache) setRedis(ctx context.Context, key AvailabilityKey, entry AvailabilityEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal availability entry: %w", err)
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = availabilityTTL
	}
	return c.redis.Set(ctx, availabilityRedisKey(key), data, ttl).Err()
}

// GetRange returns the subset of the requested date span that is present and
// non-stale, keyed by date.
func (c *AvailabilityCache) GetRange(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, from, to time.Time) (map[time.Time]AvailabilityEntry, error) {
	out := make(map[time.Time]AvailabilityEntry)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := AvailabilityKey{ClinicID: clinicID, PractitionerID: practitionerID, BusinessID: businessID, Date: d}
		entry, found, err := c.Get(ctx, key)
		if err != nil {
			continue
		}
		if found {
			out[d] = entry
		}
	}
	return out, nil
}

// InvalidateKey marks a single (practitioner, business, date) entry stale in
// both tiers. Called by the Booking Coordinator within the same logical
// transaction that writes or deletes the appointment locally.
func (c *AvailabilityCache) InvalidateKey(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) error {
	ctx, span := c.tracer.Start(ctx, "cache.availability.invalidate_key")
	defer span.End()

	key := AvailabilityKey{ClinicID: clinicID, PractitionerID: practitionerID, BusinessID: businessID, Date: date}
	if err := c.redis.Del(ctx, availabilityRedisKey(key)).Err(); err != nil && err != redis.Nil {
		span.RecordError(err)
		c.logger.Warn("cache: redis invalidate failed", "error", err)
	}
	if c.store == nil {
		return nil
	}
	if err := c.store.MarkStale(ctx, clinicID, practitionerID, businessID, date); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: durable store mark-stale failed", "error", err)
	}
	return nil
}

// InvalidateClinic invalidates every cached availability entry for a clinic,
// used when a clinic's schedule or timezone configuration changes.
func (c *AvailabilityCache) InvalidateClinic(ctx context.Context, clinicID ids.ClinicID) error {
	ctx, span := c.tracer.Start(ctx, "cache.availability.invalidate_clinic")
	defer span.End()

	pattern := fmt.Sprintf("avail:%s:*", clinicID)
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("cache: failed to delete key during clinic invalidation", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: scan failed during clinic invalidation", "error", err)
	}
	if c.store == nil {
		return nil
	}
	if err := c.store.InvalidateClinic(ctx, clinicID); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: durable store clinic invalidation failed", "error", err)
	}
	return nil
}

// CleanupExpired deletes stale entries older than 24h and expired entries
// older than 1h from the durable store, per the periodic-refresh contract.
// It is a no-op when no durable store is configured.
func (c *AvailabilityCache) CleanupExpired(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	now := c.clock()
	if _, err := c.store.DeleteStaleBefore(ctx, now.Add(-24*time.Hour)); err != nil {
		return fmt.Errorf("cache: cleanup stale entries: %w", err)
	}
	if _, err := c.store.DeleteExpiredBefore(ctx, now.Add(-1*time.Hour)); err != nil {
		return fmt.Errorf("cache: cleanup expired entries: %w", err)
	}
	return nil
}
