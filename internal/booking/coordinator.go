package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// auMobilePattern matches a normalized AU mobile number: +61 followed by a
// leading 4 and 8 more digits. Landlines (+612/3/7/8...), empty strings,
// and malformed numbers all fail this.
var auMobilePattern = regexp.MustCompile(`^\+614\d{8}$`)

// Store persists appointments and patients locally. The Coordinator writes
// through this interface only; it never talks to Postgres directly.
type Store interface {
	FindPatientByPhone(ctx context.Context, clinicID ids.ClinicID, normalizedPhone string) (ids.PatientID, bool, error)
	SaveAppointment(ctx context.Context, appt Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID ids.AppointmentID, status string) error
	FindAppointment(ctx context.Context, req CancelRequest) (Appointment, error)
	RecordFailedAttempt(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, startUTC time.Time) error
}

// pmsClient is the subset of pmsclient.Client the Coordinator needs; a
// narrow interface so tests can substitute a fake PMS without spinning up
// an httptest server for every booking scenario.
type pmsClient interface {
	SearchPatients(ctx context.Context, phone string) ([]pmsclient.Patient, error)
	CreatePatient(ctx context.Context, first, last, phone, email string) (pmsclient.Patient, error)
	GetAvailableTimes(ctx context.Context, req pmsclient.AvailableTimesRequest) ([]time.Time, error)
	CreateAppointment(ctx context.Context, req pmsclient.CreateAppointmentRequest) (pmsclient.Appointment, error)
	DeleteAppointment(ctx context.Context, appointmentID string) error
}

// pmsFactory mints a pmsClient for a clinic.
type pmsFactory interface {
	ForClinic(ctx context.Context, clinicID ids.ClinicID) (pmsClient, error)
}

// FactoryAdapter wraps a real *pmsclient.Factory so it satisfies pmsFactory;
// production callers pass pmsclient.NewFactory(...) through this adapter.
type FactoryAdapter struct {
	Factory *pmsclient.Factory
}

func (a FactoryAdapter) ForClinic(ctx context.Context, clinicID ids.ClinicID) (pmsClient, error) {
	return a.Factory.ForClinic(ctx, clinicID)
}

// Coordinator implements the create/cancel/reschedule protocols. It is the
// only component permitted to call the PMS's appointment-mutation
// endpoints.
type Coordinator struct {
	store  Store
	pms    pmsFactory
	cache  *cache.AvailabilityCache
	locker *Locker
	clock  func() time.Time
	logger *logging.Logger
	tracer trace.Tracer
}

func New(store Store, pmsFactory pmsFactory, availabilityCache *cache.AvailabilityCache, locker *Locker, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		store:  store,
		pms:    pmsFactory,
		cache:  availabilityCache,
		locker: locker,
		clock:  time.Now,
		logger: logger,
		tracer: otel.Tracer("clinicvoice.internal.booking"),
	}
}

// Create implements the 9-step create-appointment protocol. Validation and
// entity resolution (steps 1-2) are the request layer's job; req arrives
// already resolved.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (Appointment, error) {
	ctx, span := c.tracer.Start(ctx, "booking.create")
	defer span.End()

	// Step 4: acquire the booking lock before any patient/PMS work, so a
	// losing session fails fast on slot_taken.
	release, acquired, err := c.locker.Acquire(ctx, req.PractitionerID, req.StartUTC)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: acquire lock: %w", err)
	}
	if !acquired {
		return Appointment{}, ErrSlotTaken
	}
	defer release(context.WithoutCancel(ctx))

	// Step 3: patient lookup.
	patientID, err := c.resolvePatient(ctx, req)
	if err != nil {
		return Appointment{}, err
	}

	// Step 5: re-check availability; a single authoritative PMS call if the
	// cache doesn't have the slot.
	if err := c.confirmAvailability(ctx, req); err != nil {
		return Appointment{}, err
	}

	client, err := c.pms.ForClinic(ctx, req.ClinicID)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: build pms client: %w", err)
	}

	endUTC := req.StartUTC.Add(time.Duration(req.DurationMinutes) * time.Minute)

	// Step 6: create in the PMS. Never retried by this layer — the PMS
	// create is not idempotent.
	pmsAppt, err := client.CreateAppointment(ctx, pmsclient.CreateAppointmentRequest{
		BusinessID:     req.BusinessID,
		PractitionerID: req.PractitionerID,
		ServiceID:      req.ServiceID,
		PatientID:      patientID,
		StartUTC:       req.StartUTC,
		EndUTC:         endUTC,
	})
	if err != nil {
		return c.handleCreateFailure(ctx, req, err)
	}

	// Step 7: persist locally and mark the cache stale in the same logical
	// unit of work.
	appt := Appointment{
		ID:               ids.AppointmentID(pmsAppt.ID),
		ClinicID:         req.ClinicID,
		BusinessID:       req.BusinessID,
		PractitionerID:   req.PractitionerID,
		ServiceID:        req.ServiceID,
		PatientID:        patientID,
		PMSAppointmentID: pmsAppt.ID,
		StartUTC:         req.StartUTC,
		EndUTC:           endUTC,
		Status:           "booked",
	}
	if err := c.store.SaveAppointment(ctx, appt); err != nil {
		span.RecordError(err)
		c.logger.Warn("booking: failed to persist appointment after pms success", "error", err)
		return Appointment{}, fmt.Errorf("booking: persist appointment: %w", err)
	}
	c.invalidateAvailability(ctx, req.ClinicID, req.PractitionerID, req.BusinessID, req.StartUTC)

	return appt, nil
}

func (c *Coordinator) resolvePatient(ctx context.Context, req CreateRequest) (ids.PatientID, error) {
	if !auMobilePattern.MatchString(req.CallerPhone) {
		return "", ErrInvalidPhoneNumber
	}

	if id, found, err := c.store.FindPatientByPhone(ctx, req.ClinicID, req.CallerPhone); err == nil && found {
		return id, nil
	}

	client, err := c.pms.ForClinic(ctx, req.ClinicID)
	if err != nil {
		return "", fmt.Errorf("booking: build pms client: %w", err)
	}

	found, err := client.SearchPatients(ctx, req.CallerPhone)
	if err != nil {
		c.logger.Warn("booking: patient search failed, attempting create", "error", err)
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}

	if req.PatientFirst == "" || req.PatientLast == "" {
		return "", ErrMissingInformation
	}

	patient, err := client.CreatePatient(ctx, req.PatientFirst, req.PatientLast, req.CallerPhone, req.PatientEmail)
	if err != nil {
		return "", fmt.Errorf("booking: create patient: %w", err)
	}
	return patient.ID, nil
}

func (c *Coordinator) confirmAvailability(ctx context.Context, req CreateRequest) error {
	date := req.StartUTC.Truncate(24 * time.Hour)
	key := cache.AvailabilityKey{ClinicID: req.ClinicID, PractitionerID: req.PractitionerID, BusinessID: req.BusinessID, Date: date}

	if c.cache != nil {
		if entry, found, err := c.cache.Get(ctx, key); err == nil && found {
			for _, s := range entry.Slots {
				if s.Equal(req.StartUTC) {
					return nil
				}
			}
		}
	}

	client, err := c.pms.ForClinic(ctx, req.ClinicID)
	if err != nil {
		return fmt.Errorf("booking: build pms client: %w", err)
	}
	slots, err := client.GetAvailableTimes(ctx, pmsclient.AvailableTimesRequest{
		BusinessID:     req.BusinessID,
		PractitionerID: req.PractitionerID,
		ServiceID:      req.ServiceID,
		From:           date,
		To:             date.Add(24 * time.Hour),
	})
	if err != nil {
		return fmt.Errorf("booking: authoritative availability check: %w", err)
	}
	for _, s := range slots {
		if s.Equal(req.StartUTC) {
			return nil
		}
	}
	return ErrSlotTaken
}

// handleCreateFailure implements step 8: on slot_taken/not-available,
// invalidate the cache, record the failed attempt, and surface the typed
// error; the lock is released by the caller's deferred release regardless
// of which branch runs (step 9).
func (c *Coordinator) handleCreateFailure(ctx context.Context, req CreateRequest, pmsErr error) (Appointment, error) {
	switch {
	case errors.Is(pmsErr, pmsclient.ErrSlotTaken):
		c.invalidateAvailability(ctx, req.ClinicID, req.PractitionerID, req.BusinessID, req.StartUTC)
		if err := c.store.RecordFailedAttempt(ctx, req.ClinicID, req.PractitionerID, req.BusinessID, req.StartUTC); err != nil {
			c.logger.Warn("booking: failed to record failed attempt", "error", err)
		}
		return Appointment{}, ErrSlotTaken
	case errors.Is(pmsErr, pmsclient.ErrOutsideBusinessHours):
		return Appointment{}, ErrOutsideBusinessHours
	case errors.Is(pmsErr, pmsclient.ErrRateLimited), errors.Is(pmsErr, pmsclient.ErrTransient):
		return Appointment{}, fmt.Errorf("booking: pms booking failed: %w", pmsErr)
	default:
		return Appointment{}, fmt.Errorf("booking: pms booking failed: %w", pmsErr)
	}
}

func (c *Coordinator) invalidateAvailability(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, startUTC time.Time) {
	if c.cache == nil {
		return
	}
	date := startUTC.Truncate(24 * time.Hour)
	if err := c.cache.InvalidateKey(ctx, clinicID, practitionerID, businessID, date); err != nil {
		c.logger.Warn("booking: failed to invalidate availability cache", "error", err)
	}
}

// Cancel implements the cancel protocol. A 404 from the PMS is treated as
// already-cancelled, so repeated cancel requests for the same appointment
// are idempotent.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) error {
	ctx, span := c.tracer.Start(ctx, "booking.cancel")
	defer span.End()

	appt, err := c.store.FindAppointment(ctx, req)
	if err != nil {
		return fmt.Errorf("booking: %w: %v", ErrAppointmentNotFound, err)
	}
	if appt.Status == "cancelled" {
		return nil
	}

	client, err := c.pms.ForClinic(ctx, req.ClinicID)
	if err != nil {
		return fmt.Errorf("booking: build pms client: %w", err)
	}
	if err := client.DeleteAppointment(ctx, appt.PMSAppointmentID); err != nil && !errors.Is(err, pmsclient.ErrNotFound) {
		span.RecordError(err)
		return fmt.Errorf("booking: pms cancel failed: %w", err)
	}

	if err := c.store.UpdateAppointmentStatus(ctx, appt.ID, "cancelled"); err != nil {
		return fmt.Errorf("booking: update appointment status: %w", err)
	}
	c.invalidateAvailability(ctx, appt.ClinicID, appt.PractitionerID, appt.BusinessID, appt.StartUTC)
	return nil
}

// Reschedule creates the new appointment first; only on success does it
// cancel the old one. A create failure leaves the old appointment and its
// cache state untouched; a slot_taken failure still marks the new slot's
// cache entry stale and records a failed attempt for it (see Create).
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (Appointment, error) {
	ctx, span := c.tracer.Start(ctx, "booking.reschedule")
	defer span.End()

	created, err := c.Create(ctx, req.New)
	if err != nil {
		span.RecordError(err)
		return Appointment{}, err
	}

	if err := c.Cancel(ctx, req.Old); err != nil {
		c.logger.Warn("booking: reschedule created new appointment but failed to cancel old one", "error", err)
	}
	return created, nil
}
