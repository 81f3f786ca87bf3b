package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/wolfman30/clinicvoice-core/internal/availability"
	"github.com/wolfman30/clinicvoice-core/internal/booking"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
	"github.com/wolfman30/clinicvoice-core/internal/timeutil"
)

// Errors local to the request layer: entity resolution failures that never
// reach a core component because nothing downstream could act on them.
var (
	errClinicNotFound               = errors.New("webhook: clinic_not_found")
	errLocationRequired             = errors.New("webhook: location_required")
	errInvalidBusinessID            = errors.New("webhook: invalid_business_id")
	errPractitionerNotFound         = errors.New("webhook: practitioner_not_found")
	errPractitionerClarifyNeeded    = errors.New("webhook: practitioner_clarification_needed")
	errPractitionerLocationMismatch = errors.New("webhook: practitioner_location_mismatch")
	errServiceNotFound              = errors.New("webhook: service_not_found")
	errMissingInformation           = errors.New("webhook: missing_information")
)

// classifyError maps any error this package's handlers can produce to the
// stable voice-agent error code, an HTTP status, and voice-ready text. Any
// error outside the known taxonomy becomes upstream_error/database_error
// with a generic message; callers log the original error with context
// before calling this, never inside it.
func classifyError(err error) (status int, code string, message string) {
	switch {
	case errors.Is(err, errClinicNotFound):
		return http.StatusNotFound, "clinic_not_found", "Sorry, I couldn't find this clinic. Please hold while I transfer you."
	case errors.Is(err, errLocationRequired):
		return http.StatusBadRequest, "location_required", "Could you tell me which location you'd like?"
	case errors.Is(err, errInvalidBusinessID):
		return http.StatusBadRequest, "invalid_business_id", "Sorry, I didn't recognize that location."
	case errors.Is(err, errPractitionerNotFound), errors.Is(err, booking.ErrPractitionerNotFound):
		return http.StatusNotFound, "practitioner_not_found", "Sorry, I couldn't find that practitioner."
	case errors.Is(err, errPractitionerClarifyNeeded):
		return http.StatusOK, "practitioner_clarification_needed", "I found a few practitioners that might match. Could you clarify?"
	case errors.Is(err, errPractitionerLocationMismatch):
		return http.StatusBadRequest, "practitioner_location_mismatch", "That practitioner doesn't see patients at this location."
	case errors.Is(err, errServiceNotFound), errors.Is(err, booking.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "Sorry, I couldn't find that service."
	case errors.Is(err, errMissingInformation), errors.Is(err, booking.ErrMissingInformation):
		return http.StatusBadRequest, "missing_information", "I need a bit more information to continue."
	case errors.Is(err, booking.ErrInvalidPhoneNumber):
		return http.StatusBadRequest, "invalid_phone_number", "I didn't catch a valid phone number for you."
	case errors.Is(err, timeutil.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date", "Sorry, I didn't understand that date."
	case errors.Is(err, timeutil.ErrInvalidTime), errors.Is(err, booking.ErrInvalidTime):
		return http.StatusBadRequest, "invalid_time", "Sorry, I didn't understand that time."
	case errors.Is(err, availability.ErrUseFindNextAvailable):
		return http.StatusOK, "use_find_next_available", "Let me check the next available time instead."
	case errors.Is(err, booking.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "Sorry, that time was just booked. Let's find another one."
	case errors.Is(err, booking.ErrOutsideBusinessHours), errors.Is(err, pmsclient.ErrOutsideBusinessHours):
		return http.StatusBadRequest, "outside_business_hours", "Sorry, that time is outside business hours."
	case errors.Is(err, booking.ErrPractitionerUnavailable):
		return http.StatusConflict, "practitioner_not_available", "Sorry, that practitioner isn't available then."
	case errors.Is(err, booking.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "Sorry, I couldn't find that appointment."
	case errors.Is(err, booking.ErrDuplicateBooking):
		return http.StatusConflict, "duplicate_booking", "It looks like you already have that appointment booked."
	case errors.Is(err, pmsclient.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "The scheduling system is busy, please hold."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_error", "That's taking longer than expected, let's try something else."
	case errors.Is(err, pmsclient.ErrTransient), errors.Is(err, pmsclient.ErrUpstreamError):
		return http.StatusBadGateway, "upstream_error", "Sorry, our scheduling system is having trouble. Please try again shortly."
	default:
		return http.StatusInternalServerError, "database_error", "Sorry, something went wrong on our end. Please try again shortly."
	}
}
