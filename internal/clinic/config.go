// Package clinic provides per-clinic configuration: PMS shard/credentials,
// timezone, and feature flags, scoped by clinicID and propagated through
// internal/tenancy. Config is Redis-cached (no expiry, explicit
// invalidation on write) in front of internal/store's durable clinics
// table, mirroring the teacher's own Redis-backed config store.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// Config is the configuration the core reads for one clinic. Credentials
// are deliberately absent here — those are fetched on demand through
// pmsclient.CredentialSource, never cached in the clinic config blob, so a
// leaked config payload never leaks a PMS API key.
type Config struct {
	ClinicID     ids.ClinicID    `json:"clinic_id"`
	Shard        string          `json:"shard"`
	Timezone     string          `json:"timezone"`
	FeatureFlags map[string]bool `json:"feature_flags,omitempty"`
}

// GetTimezone implements timeutil.ClinicTimezoneSource.
func (c *Config) GetTimezone() string {
	if c == nil {
		return ""
	}
	return c.Timezone
}

// FeatureEnabled reports whether a named feature flag is set for this
// clinic; an unconfigured flag defaults to false.
func (c *Config) FeatureEnabled(name string) bool {
	if c == nil || c.FeatureFlags == nil {
		return false
	}
	return c.FeatureFlags[name]
}

// Store is the Redis-backed config cache. catalog may be nil in tests that
// only exercise the Redis hot path.
type Store struct {
	redis   *redis.Client
	catalog catalogLookup
}

// catalogLookup is the narrow subset of store.CatalogRepository the config
// store needs, kept as an interface so tests can substitute a fake without
// a real pgx pool.
type catalogLookup interface {
	GetClinic(ctx context.Context, clinicID ids.ClinicID) (ClinicRow, error)
}

// ClinicRow is the durable-store projection of a clinic row; it mirrors
// store.Clinic's shape without importing internal/store (which imports
// internal/clinic's sibling packages, not this one, but keeping the
// dependency one-directional here avoids ever needing it to).
type ClinicRow struct {
	ID       ids.ClinicID
	Shard    string
	Timezone string
}

// NewStore creates a clinic config store.
func NewStore(redisClient *redis.Client, catalog catalogLookup) *Store {
	if redisClient == nil {
		panic("clinic: redis client required")
	}
	return &Store{redis: redisClient, catalog: catalog}
}

func (s *Store) key(clinicID ids.ClinicID) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

// Get returns the clinic's config, falling back to the durable catalog on
// a Redis miss and warming Redis with the result.
func (s *Store) Get(ctx context.Context, clinicID ids.ClinicID) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if err == nil {
		var cfg Config
		if decodeErr := json.Unmarshal(data, &cfg); decodeErr == nil {
			return &cfg, nil
		}
	} else if err != redis.Nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	if s.catalog == nil {
		return nil, fmt.Errorf("clinic: config not cached and no catalog configured for %s", clinicID)
	}
	row, err := s.catalog.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("clinic: load config from catalog: %w", err)
	}
	cfg := &Config{ClinicID: row.ID, Shard: row.Shard, Timezone: row.Timezone}
	if err := s.Set(ctx, cfg); err != nil {
		return cfg, nil
	}
	return cfg, nil
}

// Set writes the clinic's config to Redis. It does not write through to
// the durable catalog; clinic onboarding writes the clinics table directly.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}
	return nil
}

// Invalidate drops a clinic's cached config, forcing the next Get to
// re-read the durable catalog. Called after an admin update to the
// clinics table.
func (s *Store) Invalidate(ctx context.Context, clinicID ids.ClinicID) error {
	if err := s.redis.Del(ctx, s.key(clinicID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("clinic: invalidate config: %w", err)
	}
	return nil
}
