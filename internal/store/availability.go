package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// AvailabilityRepository implements cache.DurableAvailabilityStore against
// the availability_cache table.
type AvailabilityRepository struct {
	db db
}

func (r *AvailabilityRepository) GetAvailability(ctx context.Context, key cache.AvailabilityKey) (cache.AvailabilityEntry, bool, error) {
	const q = `
		SELECT slots, is_stale, expires_at
		FROM availability_cache
		WHERE clinic_id = $1 AND practitioner_id = $2 AND location_id = $3 AND entry_date = $4
	`
	var rawSlots []byte
	var entry cache.AvailabilityEntry
	err := r.db.QueryRow(ctx, q, key.ClinicID, key.PractitionerID, key.BusinessID, key.Date).
		Scan(&rawSlots, &entry.IsStale, &entry.ExpiresAt)
	if err == pgx.ErrNoRows {
		return cache.AvailabilityEntry{}, false, nil
	}
	if err != nil {
		return cache.AvailabilityEntry{}, false, fmt.Errorf("store: get availability: %w", err)
	}
	var slots []time.Time
	if err := json.Unmarshal(rawSlots, &slots); err != nil {
		return cache.AvailabilityEntry{}, false, fmt.Errorf("store: decode availability slots: %w", err)
	}
	entry.ClinicID = key.ClinicID
	entry.PractitionerID = key.PractitionerID
	entry.BusinessID = key.BusinessID
	entry.Date = key.Date
	entry.Slots = slots
	return entry, true, nil
}

func (r *AvailabilityRepository) PutAvailability(ctx context.Context, entry cache.AvailabilityEntry) error {
	rawSlots, err := json.Marshal(entry.Slots)
	if err != nil {
		return fmt.Errorf("store: encode availability slots: %w", err)
	}
	const q = `
		INSERT INTO availability_cache (clinic_id, practitioner_id, location_id, entry_date, slots, is_stale, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (clinic_id, practitioner_id, location_id, entry_date)
		DO UPDATE SET slots = EXCLUDED.slots, is_stale = EXCLUDED.is_stale, expires_at = EXCLUDED.expires_at
	`
	_, err = r.db.Exec(ctx, q, entry.ClinicID, entry.PractitionerID, entry.BusinessID, entry.Date, rawSlots, entry.IsStale, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: put availability: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) MarkStale(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) error {
	const q = `
		UPDATE availability_cache SET is_stale = true
		WHERE clinic_id = $1 AND practitioner_id = $2 AND location_id = $3 AND entry_date = $4
	`
	if _, err := r.db.Exec(ctx, q, clinicID, practitionerID, businessID, date); err != nil {
		return fmt.Errorf("store: mark stale: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) InvalidateClinic(ctx context.Context, clinicID ids.ClinicID) error {
	const q = `UPDATE availability_cache SET is_stale = true WHERE clinic_id = $1`
	if _, err := r.db.Exec(ctx, q, clinicID); err != nil {
		return fmt.Errorf("store: invalidate clinic availability: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM availability_cache WHERE expires_at < $1`
	tag, err := r.db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AvailabilityRepository) DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM availability_cache WHERE is_stale AND expires_at < $1`
	tag, err := r.db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete stale availability: %w", err)
	}
	return tag.RowsAffected(), nil
}
