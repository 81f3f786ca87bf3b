package clinic

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type fakeCatalogLookup struct {
	row ClinicRow
	err error
}

func (f fakeCatalogLookup) GetClinic(ctx context.Context, clinicID ids.ClinicID) (ClinicRow, error) {
	return f.row, f.err
}

func TestStore_Get_FallsBackToCatalogOnMiss(t *testing.T) {
	catalog := fakeCatalogLookup{row: ClinicRow{ID: "clinic-1", Shard: "shard1", Timezone: "Australia/Sydney"}}
	store := NewStore(newTestRedisClient(t), catalog)

	cfg, err := store.Get(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Shard != "shard1" || cfg.Timezone != "Australia/Sydney" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestStore_Get_PrefersRedisOverCatalog(t *testing.T) {
	store := NewStore(newTestRedisClient(t), fakeCatalogLookup{})
	if err := store.Set(context.Background(), &Config{ClinicID: "clinic-1", Shard: "cached-shard", Timezone: "UTC"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := store.Get(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Shard != "cached-shard" {
		t.Fatalf("expected cached value, got %+v", cfg)
	}
}

func TestStore_Invalidate_ForcesCatalogReload(t *testing.T) {
	catalog := fakeCatalogLookup{row: ClinicRow{ID: "clinic-1", Shard: "fresh-shard", Timezone: "UTC"}}
	store := NewStore(newTestRedisClient(t), catalog)

	if err := store.Set(context.Background(), &Config{ClinicID: "clinic-1", Shard: "stale-shard"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Invalidate(context.Background(), "clinic-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := store.Get(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Shard != "fresh-shard" {
		t.Fatalf("expected reload from catalog, got %+v", cfg)
	}
}

func TestConfig_FeatureEnabled(t *testing.T) {
	cfg := &Config{FeatureFlags: map[string]bool{"next_available_v2": true}}
	if !cfg.FeatureEnabled("next_available_v2") {
		t.Fatal("expected enabled flag to report true")
	}
	if cfg.FeatureEnabled("unknown_flag") {
		t.Fatal("expected unconfigured flag to default false")
	}
}
