package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicvoice-core/internal/booking"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// BookingRepository implements booking.Store: patient lookup and
// appointment persistence. It never talks to the PMS; the Coordinator owns
// that boundary.
type BookingRepository struct {
	db db
}

func (r *BookingRepository) FindPatientByPhone(ctx context.Context, clinicID ids.ClinicID, normalizedPhone string) (ids.PatientID, bool, error) {
	const q = `
		SELECT id FROM patients
		WHERE clinic_id = $1 AND phone_normalized = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var id string
	err := r.db.QueryRow(ctx, q, clinicID, normalizedPhone).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: find patient by phone: %w", err)
	}
	return ids.PatientID(id), true, nil
}

func (r *BookingRepository) SaveAppointment(ctx context.Context, appt booking.Appointment) error {
	id := string(appt.ID)
	if id == "" {
		id = uuid.New().String()
	}
	const q = `
		INSERT INTO appointments (id, clinic_id, location_id, practitioner_id, service_id, patient_id, pms_appointment_id, start_utc, end_utc, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`
	_, err := r.db.Exec(ctx, q, id, appt.ClinicID, appt.BusinessID, appt.PractitionerID, appt.ServiceID,
		appt.PatientID, appt.PMSAppointmentID, appt.StartUTC, appt.EndUTC, appt.Status)
	if err != nil {
		return fmt.Errorf("store: save appointment: %w", err)
	}
	return nil
}

func (r *BookingRepository) UpdateAppointmentStatus(ctx context.Context, appointmentID ids.AppointmentID, status string) error {
	const q = `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, string(appointmentID), status)
	if err != nil {
		return fmt.Errorf("store: update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrAppointmentNotFound
	}
	return nil
}

// FindAppointment resolves req.AppointmentID directly when present;
// otherwise it disambiguates by clinic, caller phone, and the optional
// practitioner/service/near-time hints, taking the appointment whose start
// time is closest to NearTime. This mirrors the cancel protocol's
// disambiguation rule, not an exact match.
func (r *BookingRepository) FindAppointment(ctx context.Context, req booking.CancelRequest) (booking.Appointment, error) {
	if req.AppointmentID != "" {
		return r.findByID(ctx, req.ClinicID, req.AppointmentID)
	}
	return r.findByDisambiguation(ctx, req)
}

func (r *BookingRepository) findByID(ctx context.Context, clinicID ids.ClinicID, appointmentID ids.AppointmentID) (booking.Appointment, error) {
	const q = `
		SELECT id, clinic_id, location_id, practitioner_id, service_id, patient_id, pms_appointment_id, start_utc, end_utc, status
		FROM appointments WHERE id = $1 AND clinic_id = $2
	`
	appt, err := scanAppointment(r.db.QueryRow(ctx, q, string(appointmentID), clinicID))
	if err == pgx.ErrNoRows {
		return booking.Appointment{}, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("store: find appointment by id: %w", err)
	}
	return appt, nil
}

func (r *BookingRepository) findByDisambiguation(ctx context.Context, req booking.CancelRequest) (booking.Appointment, error) {
	if req.CallerPhone == "" {
		return booking.Appointment{}, booking.ErrMissingInformation
	}
	near := req.NearTime
	if near.IsZero() {
		near = time.Now()
	}
	q := `
		SELECT a.id, a.clinic_id, a.location_id, a.practitioner_id, a.service_id, a.patient_id, a.pms_appointment_id, a.start_utc, a.end_utc, a.status
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.clinic_id = $1 AND p.phone_normalized = $2 AND a.status = 'booked'
	`
	args := []any{req.ClinicID, req.CallerPhone}
	if req.PractitionerID != "" {
		args = append(args, req.PractitionerID)
		q += fmt.Sprintf(" AND a.practitioner_id = $%d", len(args))
	}
	if req.ServiceID != "" {
		args = append(args, req.ServiceID)
		q += fmt.Sprintf(" AND a.service_id = $%d", len(args))
	}
	args = append(args, near)
	q += fmt.Sprintf(" ORDER BY abs(extract(epoch from a.start_utc - $%d::timestamptz)) ASC LIMIT 1", len(args))

	appt, err := scanAppointment(r.db.QueryRow(ctx, q, args...))
	if err == pgx.ErrNoRows {
		return booking.Appointment{}, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("store: find appointment by disambiguation: %w", err)
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (booking.Appointment, error) {
	var appt booking.Appointment
	var id, clinicID, locationID, practitionerID, serviceID, patientID string
	err := row.Scan(&id, &clinicID, &locationID, &practitionerID, &serviceID, &patientID,
		&appt.PMSAppointmentID, &appt.StartUTC, &appt.EndUTC, &appt.Status)
	if err != nil {
		return booking.Appointment{}, err
	}
	appt.ID = ids.AppointmentID(id)
	appt.ClinicID = ids.ClinicID(clinicID)
	appt.BusinessID = ids.BusinessID(locationID)
	appt.PractitionerID = ids.PractitionerID(practitionerID)
	appt.ServiceID = ids.ServiceID(serviceID)
	appt.PatientID = ids.PatientID(patientID)
	return appt, nil
}

func (r *BookingRepository) RecordFailedAttempt(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, startUTC time.Time) error {
	const q = `
		INSERT INTO failed_booking_attempts (clinic_id, practitioner_id, location_id, slot_start)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (clinic_id, practitioner_id, location_id, slot_start) DO UPDATE SET failed_at = now()
	`
	if _, err := r.db.Exec(ctx, q, clinicID, practitionerID, businessID, startUTC); err != nil {
		return fmt.Errorf("store: record failed attempt: %w", err)
	}
	return nil
}
