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

// BookingPreferences is the per-caller state the Booking Context cache
// stores: their last search criteria and any standing preference (preferred
// practitioner, preferred location) learned across calls.
type BookingPreferences struct {
	LastClinicID       ids.ClinicID
	LastBusinessID     ids.BusinessID
	LastPractitionerID ids.PractitionerID
	LastServiceID      ids.ServiceID
	PreferredDayPart   string // "morning", "afternoon", "evening"
}

// BookingContextCache stores per-caller search state, keyed by normalized
// phone number.
type BookingContextCache struct {
	redis  *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

func NewBookingContextCache(redisClient *redis.Client, logger *logging.Logger) *BookingContextCache {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingContextCache{redis: redisClient, logger: logger, tracer: otel.Tracer("clinicvoice.internal.cache.booking_context")}
}

func bookingContextKey(normalizedPhone string) string {
	return fmt.Sprintf("bookctx:%s", normalizedPhone)
}

func (c *BookingContextCache) Get(ctx context.Context, normalizedPhone string) (BookingPreferences, bool) {
	ctx, span := c.tracer.Start(ctx, "cache.booking_context.get")
	defer span.End()

	data, err := c.redis.Get(ctx, bookingContextKey(normalizedPhone)).Bytes()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			c.logger.Warn("cache: booking context read failed, degrading to miss", "error", err)
		}
		return BookingPreferences{}, false
	}
	var prefs BookingPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		c.logger.Warn("cache: failed to decode booking context", "error", err)
		return BookingPreferences{}, false
	}
	return prefs, true
}

func (c *BookingContextCache) Set(ctx context.Context, normalizedPhone string, prefs BookingPreferences) {
	ctx, span := c.tracer.Start(ctx, "cache.booking_context.set")
	defer span.End()

	data, err := json.Marshal(prefs)
	if err != nil {
		c.logger.Warn("cache: failed to marshal booking context", "error", err)
		return
	}
	if err := c.redis.Set(ctx, bookingContextKey(normalizedPhone), data, bookingContextTTL).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: failed to persist booking context", "error", err)
	}
}

// PatientRecord is the cached PMS patient identity for a (phone, clinic)
// pair, so a repeat caller's first-booking lookup is a single cache read.
type PatientRecord struct {
	PatientID ids.PatientID
	First     string
	Last      string
	Email     string
}

// PatientCache caches PMS patient identity by (normalized phone, clinic).
type PatientCache struct {
	redis  *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

func NewPatientCache(redisClient *redis.Client, logger *logging.Logger) *PatientCache {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientCache{redis: redisClient, logger: logger, tracer: otel.Tracer("clinicvoice.internal.cache.patient")}
}

func patientKey(normalizedPhone string, clinicID ids.ClinicID) string {
	return fmt.Sprintf("patient:%s:%s", clinicID, normalizedPhone)
}

func (c *PatientCache) Get(ctx context.Context, normalizedPhone string, clinicID ids.ClinicID) (PatientRecord, bool) {
	ctx, span := c.tracer.Start(ctx, "cache.patient.get")
	defer span.End()

	data, err := c.redis.Get(ctx, patientKey(normalizedPhone, clinicID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			c.logger.Warn("cache: patient read failed, degrading to miss", "error", err)
		}
		return PatientRecord{}, false
	}
	var rec PatientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("cache: failed to decode patient record", "error", err)
		return PatientRecord{}, false
	}
	return rec, true
}

func (c *PatientCache) Set(ctx context.Context, normalizedPhone string, clinicID ids.ClinicID, rec PatientRecord) {
	ctx, span := c.tracer.Start(ctx, "cache.patient.set")
	defer span.End()

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("cache: failed to marshal patient record", "error", err)
		return
	}
	if err := c.redis.Set(ctx, patientKey(normalizedPhone, clinicID), data, patientTTL).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: failed to persist patient record", "error", err)
	}
}

// ServiceMatch is a cached resolution of a free-text query to a service.
type ServiceMatch struct {
	ServiceID  ids.ServiceID
	MatchType  string
	UsageCount int64
}

// ServiceMatchCache caches free-text-to-service resolutions, reference
// counted by UsageCount so low-use entries can be evicted on cleanup.
type ServiceMatchCache struct {
	redis  *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

func NewServiceMatchCache(redisClient *redis.Client, logger *logging.Logger) *ServiceMatchCache {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ServiceMatchCache{redis: redisClient, logger: logger, tracer: otel.Tracer("clinicvoice.internal.cache.service_match")}
}

func serviceMatchKey(clinicID ids.ClinicID, normalizedQuery string) string {
	return fmt.Sprintf("svcmatch:%s:%s", clinicID, normalizedQuery)
}

func (c *ServiceMatchCache) Get(ctx context.Context, clinicID ids.ClinicID, normalizedQuery string) (ServiceMatch, bool) {
	ctx, span := c.tracer.Start(ctx, "cache.service_match.get")
	defer span.End()

	key := serviceMatchKey(clinicID, normalizedQuery)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			c.logger.Warn("cache: service match read failed, degrading to miss", "error", err)
		}
		return ServiceMatch{}, false
	}
	var match ServiceMatch
	if err := json.Unmarshal(data, &match); err != nil {
		c.logger.Warn("cache: failed to decode service match", "error", err)
		return ServiceMatch{}, false
	}
	match.UsageCount++
	if marshaled, err := json.Marshal(match); err == nil {
		if err := c.redis.Set(ctx, key, marshaled, serviceMatchTTL).Err(); err != nil {
			c.logger.Warn("cache: failed to bump service match usage count", "error", err)
		}
	}
	return match, true
}

func (c *ServiceMatchCache) Set(ctx context.Context, clinicID ids.ClinicID, normalizedQuery string, match ServiceMatch) {
	ctx, span := c.tracer.Start(ctx, "cache.service_match.set")
	defer span.End()

	data, err := json.Marshal(match)
	if err != nil {
		c.logger.Warn("cache: failed to marshal service match", "error", err)
		return
	}
	if err := c.redis.Set(ctx, serviceMatchKey(clinicID, normalizedQuery), data, serviceMatchTTL).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: failed to persist service match", "error", err)
	}
}

// DeleteLowUsage is called from the periodic cleanup task to evict
// service-match entries whose usage_count falls below minUsage, scanning
// the clinic's key space since Redis has no secondary index on value fields.
func (c *ServiceMatchCache) DeleteLowUsage(ctx context.Context, clinicID ids.ClinicID, minUsage int64) error {
	pattern := fmt.Sprintf("svcmatch:%s:*", clinicID)
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := c.redis.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var match ServiceMatch
		if err := json.Unmarshal(data, &match); err != nil {
			continue
		}
		if match.UsageCount < minUsage {
			if err := c.redis.Del(ctx, key).Err(); err != nil {
				c.logger.Warn("cache: failed to evict low-usage service match", "key", key, "error", err)
			}
		}
	}
	return iter.Err()
}
