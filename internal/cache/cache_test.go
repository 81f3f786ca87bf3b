package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

type fakeDurableStore struct {
	entries map[AvailabilityKey]AvailabilityEntry
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{entries: make(map[AvailabilityKey]AvailabilityEntry)}
}

func (f *fakeDurableStore) GetAvailability(ctx context.Context, key AvailabilityKey) (AvailabilityEntry, bool, error) {
	e, ok := f.entries[key]
	return e, ok, nil
}

func (f *fakeDurableStore) PutAvailability(ctx context.Context, entry AvailabilityEntry) error {
	key := AvailabilityKey{ClinicID: entry.ClinicID, PractitionerID: entry.PractitionerID, BusinessID: entry.BusinessID, Date: entry.Date}
	f.entries[key] = entry
	return nil
}

func (f *fakeDurableStore) MarkStale(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) error {
	key := AvailabilityKey{ClinicID: clinicID, PractitionerID: practitionerID, BusinessID: businessID, Date: date}
	if e, ok := f.entries[key]; ok {
		e.IsStale = true
		f.entries[key] = e
	}
	return nil
}

func (f *fakeDurableStore) InvalidateClinic(ctx context.Context, clinicID ids.ClinicID) error {
	for k, e := range f.entries {
		if k.ClinicID == clinicID {
			e.IsStale = true
			f.entries[k] = e
		}
	}
	return nil
}

func (f *fakeDurableStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDurableStore) DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAvailabilityCache_SetThenGet(t *testing.T) {
	client := newTestRedis(t)
	store := newFakeDurableStore()
	cache := NewAvailabilityCache(client, store, nil)

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	entry := AvailabilityEntry{
		ClinicID:       "clinic-1",
		PractitionerID: "prac-1",
		BusinessID:     "biz-1",
		Date:           date,
		Slots:          []time.Time{date.Add(9 * time.Hour)},
	}

	if err := cache.Set(context.Background(), entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := cache.Get(context.Background(), AvailabilityKey{ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if len(got.Slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(got.Slots))
	}
}

func TestAvailabilityCache_FallsBackToDurableStoreOnRedisMiss(t *testing.T) {
	client := newTestRedis(t)
	store := newFakeDurableStore()
	cache := NewAvailabilityCache(client, store, nil)

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	key := AvailabilityKey{ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date}
	store.entries[key] = AvailabilityEntry{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
		Slots: []time.Time{date.Add(9 * time.Hour)}, ExpiresAt: time.Now().Add(time.Hour),
	}

	got, found, err := cache.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected durable-store fallback to find the entry")
	}
	if len(got.Slots) != 1 {
		t.Fatalf("expected 1 slot from durable fallback, got %d", len(got.Slots))
	}
}

func TestAvailabilityCache_StaleEntryIsTreatedAsMiss(t *testing.T) {
	client := newTestRedis(t)
	cache := NewAvailabilityCache(client, nil, nil)

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	entry := AvailabilityEntry{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
		IsStale: true, ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := cache.Set(context.Background(), entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, found, err := cache.Get(context.Background(), AvailabilityKey{ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected stale entry to be treated as a miss")
	}
}

func TestAvailabilityCache_InvalidateKey(t *testing.T) {
	client := newTestRedis(t)
	store := newFakeDurableStore()
	cache := NewAvailabilityCache(client, store, nil)

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	entry := AvailabilityEntry{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := cache.Set(context.Background(), entry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.InvalidateKey(context.Background(), "clinic-1", "prac-1", "biz-1", date); err != nil {
		t.Fatalf("InvalidateKey: %v", err)
	}

	_, found, err := cache.Get(context.Background(), AvailabilityKey{ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected invalidated key to be a miss")
	}
}

func TestBookingContextCache_RoundTrip(t *testing.T) {
	client := newTestRedis(t)
	cache := NewBookingContextCache(client, nil)

	prefs := BookingPreferences{LastClinicID: "clinic-1", PreferredDayPart: "morning"}
	cache.Set(context.Background(), "+61400000000", prefs)

	got, found := cache.Get(context.Background(), "+61400000000")
	if !found {
		t.Fatal("expected booking context to be found")
	}
	if got.PreferredDayPart != "morning" {
		t.Fatalf("expected morning, got %s", got.PreferredDayPart)
	}
}

func TestPatientCache_RoundTrip(t *testing.T) {
	client := newTestRedis(t)
	cache := NewPatientCache(client, nil)

	rec := PatientRecord{PatientID: "pat-1", First: "Ann", Last: "Lee"}
	cache.Set(context.Background(), "+61400000000", "clinic-1", rec)

	got, found := cache.Get(context.Background(), "+61400000000", "clinic-1")
	if !found {
		t.Fatal("expected patient record to be found")
	}
	if got.PatientID != "pat-1" {
		t.Fatalf("expected pat-1, got %s", got.PatientID)
	}
}

func TestServiceMatchCache_UsageCountIncrements(t *testing.T) {
	client := newTestRedis(t)
	cache := NewServiceMatchCache(client, nil)

	cache.Set(context.Background(), "clinic-1", "botox", ServiceMatch{ServiceID: "svc-1", MatchType: "exact"})

	first, found := cache.Get(context.Background(), "clinic-1", "botox")
	if !found || first.UsageCount != 1 {
		t.Fatalf("expected usage count 1 after first read, got %+v", first)
	}

	second, found := cache.Get(context.Background(), "clinic-1", "botox")
	if !found || second.UsageCount != 2 {
		t.Fatalf("expected usage count 2 after second read, got %+v", second)
	}
}

func TestServiceMatchCache_DeleteLowUsage(t *testing.T) {
	client := newTestRedis(t)
	cache := NewServiceMatchCache(client, nil)

	cache.Set(context.Background(), "clinic-1", "botox", ServiceMatch{ServiceID: "svc-1", UsageCount: 0})
	cache.Set(context.Background(), "clinic-1", "filler", ServiceMatch{ServiceID: "svc-2", UsageCount: 50})

	if err := cache.DeleteLowUsage(context.Background(), "clinic-1", 5); err != nil {
		t.Fatalf("DeleteLowUsage: %v", err)
	}

	if _, found := cache.Get(context.Background(), "clinic-1", "botox"); found {
		t.Fatal("expected low-usage entry to be evicted")
	}
	if _, found := cache.Get(context.Background(), "clinic-1", "filler"); !found {
		t.Fatal("expected high-usage entry to survive cleanup")
	}
}
