package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
)

func TestAvailabilityRepository_GetAvailability_Found(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	expires := date.Add(15 * time.Minute)
	mock.ExpectQuery(`SELECT slots, is_stale, expires_at FROM availability_cache`).
		WithArgs("clinic-1", "prac-1", "biz-1", date).
		WillReturnRows(pgxmock.NewRows([]string{"slots", "is_stale", "expires_at"}).
			AddRow([]byte(`["2025-07-16T09:00:00Z"]`), false, expires))

	repo := &AvailabilityRepository{db: mock}
	entry, found, err := repo.GetAvailability(context.Background(), cache.AvailabilityKey{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if len(entry.Slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(entry.Slots))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAvailabilityRepository_GetAvailability_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT slots, is_stale, expires_at FROM availability_cache`).
		WithArgs("clinic-1", "prac-1", "biz-1", date).
		WillReturnError(pgx.ErrNoRows)

	repo := &AvailabilityRepository{db: mock}
	_, found, err := repo.GetAvailability(context.Background(), cache.AvailabilityKey{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestAvailabilityRepository_PutAvailability(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO availability_cache`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := &AvailabilityRepository{db: mock}
	err = repo.PutAvailability(context.Background(), cache.AvailabilityEntry{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
		Slots: []time.Time{date.Add(9 * time.Hour)}, ExpiresAt: date.Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAvailabilityRepository_DeleteStaleBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM availability_cache WHERE is_stale AND expires_at < \$1`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := &AvailabilityRepository{db: mock}
	n, err := repo.DeleteStaleBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows deleted, got %d", n)
	}
}
