package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// rejectedSlotTTL and failedAttemptWindow bound how long a session's
// declined slot or a PMS-reported conflict keeps suppressing an offer, per
// the rejected-slot and failed-booking-attempt entries in the state table.
const (
	rejectedSlotTTL     = 30 * time.Minute
	failedAttemptWindow = 2 * time.Hour
)

// ScheduleRepository implements availability.ScheduleSource,
// availability.RejectedSlotSource, and availability.FailedAttemptSource.
// The latter two predicates never return an error to the caller: a lookup
// failure degrades to "not rejected / not recently failed" and is logged,
// matching the tiered cache's fail-open-to-miss semantics so a transient DB
// hiccup never blocks an otherwise-valid slot from being offered.
type ScheduleRepository struct {
	db     db
	logger *logging.Logger
}

// WorksOn answers whether a practitioner's weekly schedule has them working
// at a location on date's weekday. Absence of a row is treated as "works"
// by the caller (the availability engine keeps the triple conservatively),
// so this only returns false when an explicit non-working row exists.
func (r *ScheduleRepository) WorksOn(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) (bool, error) {
	const q = `
		SELECT works FROM practitioner_schedule
		WHERE practitioner_id = $1 AND location_id = $2 AND day_of_week = $3
	`
	var works bool
	err := r.db.QueryRow(ctx, q, practitionerID, businessID, int(date.Weekday())).Scan(&works)
	if err == pgx.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: works on: %w", err)
	}
	return works, nil
}

func (r *ScheduleRepository) IsRejected(ctx context.Context, sessionID ids.SessionID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool {
	const q = `
		SELECT 1 FROM session_rejected_slots
		WHERE session_id = $1 AND practitioner_id = $2 AND location_id = $3 AND slot_start = $4
		  AND rejected_at > $5
	`
	var dummy int
	err := r.db.QueryRow(ctx, q, sessionID, practitionerID, businessID, slotStart, time.Now().Add(-rejectedSlotTTL)).Scan(&dummy)
	if err == pgx.ErrNoRows {
		return false
	}
	if err != nil {
		r.log().Warn("store: rejected-slot lookup failed, treating as not rejected", "error", err)
		return false
	}
	return true
}

// RecordRejection records that sessionID declined an offered slot, so it is
// not re-offered for the rest of the call.
func (r *ScheduleRepository) RecordRejection(ctx context.Context, sessionID ids.SessionID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) error {
	const q = `
		INSERT INTO session_rejected_slots (session_id, practitioner_id, location_id, slot_start, rejected_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id, practitioner_id, location_id, slot_start) DO UPDATE SET rejected_at = now()
	`
	if _, err := r.db.Exec(ctx, q, sessionID, practitionerID, businessID, slotStart); err != nil {
		return fmt.Errorf("store: record rejection: %w", err)
	}
	return nil
}

// ClearRejections drops a session's rejected-slot set, called when the
// caller's search criteria changes (a new practitioner, service, or date).
func (r *ScheduleRepository) ClearRejections(ctx context.Context, sessionID ids.SessionID) error {
	const q = `DELETE FROM session_rejected_slots WHERE session_id = $1`
	if _, err := r.db.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("store: clear rejections: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) IsRecentlyFailed(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool {
	const q = `
		SELECT 1 FROM failed_booking_attempts
		WHERE clinic_id = $1 AND practitioner_id = $2 AND location_id = $3 AND slot_start = $4
		  AND failed_at > $5
	`
	var dummy int
	err := r.db.QueryRow(ctx, q, clinicID, practitionerID, businessID, slotStart, time.Now().Add(-failedAttemptWindow)).Scan(&dummy)
	if err == pgx.ErrNoRows {
		return false
	}
	if err != nil {
		r.log().Warn("store: failed-attempt lookup failed, treating as not failed", "error", err)
		return false
	}
	return true
}

// DeleteRejectedBefore and DeleteFailedBefore are called by the periodic
// refresh worker to keep both tables bounded.
func (r *ScheduleRepository) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM session_rejected_slots WHERE rejected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete old rejections: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ScheduleRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM failed_booking_attempts WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete old failed attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ScheduleRepository) log() *logging.Logger {
	if r.logger == nil {
		return logging.Default()
	}
	return r.logger
}
