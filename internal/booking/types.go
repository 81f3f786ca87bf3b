// Package booking implements the Booking Coordinator: the only component
// allowed to create, cancel, or reschedule an appointment. Reschedule is
// always "create new then cancel old", never an in-place modification, so
// a failed create leaves the original appointment untouched.
package booking

import (
	"errors"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// Typed errors surfaced to callers, mirroring the voice-facing error
// taxonomy. The webhook layer turns these into voice-friendly text; this
// package never produces user-facing strings itself.
var (
	ErrSlotTaken               = errors.New("booking: slot_taken")
	ErrOutsideBusinessHours    = errors.New("booking: outside_business_hours")
	ErrPractitionerUnavailable = errors.New("booking: practitioner_not_available")
	ErrAppointmentNotFound     = errors.New("booking: appointment_not_found")
	ErrDuplicateBooking        = errors.New("booking: duplicate_booking")
	ErrInvalidPhoneNumber      = errors.New("booking: invalid_phone_number")
	ErrInvalidDate             = errors.New("booking: invalid_date")
	ErrInvalidTime             = errors.New("booking: invalid_time")
	ErrMissingInformation      = errors.New("booking: missing_information")
	ErrServiceNotFound         = errors.New("booking: service_not_found")
	ErrPractitionerNotFound    = errors.New("booking: practitioner_not_found")
	ErrLockHeld                = errors.New("booking: lock_held")
)

// CreateRequest is a fully-resolved booking request: entity resolution
// (Matcher) and validation already happened in the request layer per the
// create protocol's steps 1-2. The Coordinator performs steps 3-9.
type CreateRequest struct {
	SessionID       ids.SessionID
	ClinicID        ids.ClinicID
	BusinessID      ids.BusinessID
	PractitionerID  ids.PractitionerID
	ServiceID       ids.ServiceID
	ServiceName     string // used only for the strict, non-fuzzy lookup log
	DurationMinutes int

	CallerPhone  string // normalized AU mobile
	PatientFirst string
	PatientLast  string
	PatientEmail string

	StartUTC time.Time
}

// Appointment is the locally persisted record of a booking, independent of
// the PMS's own identifiers.
type Appointment struct {
	ID               ids.AppointmentID
	ClinicID         ids.ClinicID
	BusinessID       ids.BusinessID
	PractitionerID   ids.PractitionerID
	ServiceID        ids.ServiceID
	PatientID        ids.PatientID
	PMSAppointmentID string
	StartUTC         time.Time
	EndUTC           time.Time
	Status           string // "booked", "cancelled"
}

// CancelRequest identifies the appointment to cancel, either directly by ID
// or by the (clinic, phone, near-term) disambiguation the protocol allows.
type CancelRequest struct {
	SessionID      ids.SessionID
	ClinicID       ids.ClinicID
	AppointmentID  ids.AppointmentID // optional; when empty, resolved by the fields below
	CallerPhone    string
	PractitionerID ids.PractitionerID // optional disambiguator
	ServiceID      ids.ServiceID      // optional disambiguator
	NearTime       time.Time          // optional disambiguator
}

// RescheduleRequest creates a new booking and, only on its success, cancels
// the old one.
type RescheduleRequest struct {
	Old CancelRequest
	New CreateRequest
}
