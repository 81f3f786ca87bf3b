package webhook

import (
	"net/http"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/booking"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/timeutil"
)

// BookRequest books a new appointment. Date and Time are clinic-local civil
// values; the handler combines and converts them to UTC before calling the
// Coordinator.
type BookRequest struct {
	BusinessID     string `json:"businessId" validate:"required"`
	PractitionerID string `json:"practitionerId" validate:"required"`
	ServiceID      string `json:"serviceId" validate:"required"`
	Date           string `json:"date" validate:"required"`
	Time           string `json:"time" validate:"required"`
	PatientFirst   string `json:"patientFirstName" validate:"required"`
	PatientLast    string `json:"patientLastName" validate:"required"`
	PatientPhone   string `json:"patientPhone" validate:"required"`
	PatientEmail   string `json:"patientEmail"`
	SessionID      string `json:"sessionId" validate:"required"`
	DialedNumber   string `json:"dialedNumber" validate:"required"`
}

// Book handles "Book appointment".
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	startUTC, err := h.resolveStartTime(rc, req.Date, req.Time)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	service, err := h.core.Catalog.GetService(rc.Ctx, rc.ClinicID, ids.ServiceID(req.ServiceID))
	if err != nil {
		respondError(w, req.SessionID, errServiceNotFound)
		return
	}

	appt, err := h.core.Coordinator.Create(rc.Ctx, booking.CreateRequest{
		SessionID:       ids.SessionID(req.SessionID),
		ClinicID:        rc.ClinicID,
		BusinessID:      ids.BusinessID(req.BusinessID),
		PractitionerID:  ids.PractitionerID(req.PractitionerID),
		ServiceID:       ids.ServiceID(req.ServiceID),
		ServiceName:     service.Name,
		DurationMinutes: service.DurationMinutes,
		CallerPhone:     normalizeAUPhone(req.PatientPhone),
		PatientFirst:    req.PatientFirst,
		PatientLast:     req.PatientLast,
		PatientEmail:    req.PatientEmail,
		StartUTC:        startUTC,
	})
	if err != nil {
		h.core.Metrics.ObserveBookingAttempt("failed")
		respondError(w, req.SessionID, err)
		return
	}
	h.core.Metrics.ObserveBookingAttempt("booked")

	respondSuccess(w, req.SessionID, "You're all booked for "+timeutil.FormatForVoice(appt.StartUTC, rc.Location)+".", func(e *envelope) {
		e.BookingID = string(appt.ID)
		e.ConfirmationNumber = appt.PMSAppointmentID
		e.PatientName = req.PatientFirst + " " + req.PatientLast
		e.TimeSlot = &timeSlotView{
			StartUTC: appt.StartUTC.UTC().Format("2006-01-02T15:04:05Z"),
			Display:  timeutil.FormatForVoice(appt.StartUTC, rc.Location),
		}
	})
}

// RescheduleRequest cancels an existing appointment and books a new one in
// its place, succeeding the cancel only after the new booking is confirmed.
type RescheduleRequest struct {
	AppointmentID  string `json:"appointmentId"`
	PatientPhone   string `json:"patientPhone" validate:"required"`
	BusinessID     string `json:"businessId" validate:"required"`
	PractitionerID string `json:"practitionerId" validate:"required"`
	ServiceID      string `json:"serviceId" validate:"required"`
	Date           string `json:"date" validate:"required"`
	Time           string `json:"time" validate:"required"`
	SessionID      string `json:"sessionId" validate:"required"`
	DialedNumber   string `json:"dialedNumber" validate:"required"`
}

// Reschedule handles "Reschedule appointment".
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	startUTC, err := h.resolveStartTime(rc, req.Date, req.Time)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	phone := normalizeAUPhone(req.PatientPhone)
	service, err := h.core.Catalog.GetService(rc.Ctx, rc.ClinicID, ids.ServiceID(req.ServiceID))
	if err != nil {
		respondError(w, req.SessionID, errServiceNotFound)
		return
	}

	appt, err := h.core.Coordinator.Reschedule(rc.Ctx, booking.RescheduleRequest{
		Old: booking.CancelRequest{
			SessionID:      ids.SessionID(req.SessionID),
			ClinicID:       rc.ClinicID,
			AppointmentID:  ids.AppointmentID(req.AppointmentID),
			CallerPhone:    phone,
			PractitionerID: ids.PractitionerID(req.PractitionerID),
		},
		New: booking.CreateRequest{
			SessionID:       ids.SessionID(req.SessionID),
			ClinicID:        rc.ClinicID,
			BusinessID:      ids.BusinessID(req.BusinessID),
			PractitionerID:  ids.PractitionerID(req.PractitionerID),
			ServiceID:       ids.ServiceID(req.ServiceID),
			ServiceName:     service.Name,
			DurationMinutes: service.DurationMinutes,
			CallerPhone:     phone,
			StartUTC:        startUTC,
		},
	})
	if err != nil {
		h.core.Metrics.ObserveBookingAttempt("reschedule_failed")
		respondError(w, req.SessionID, err)
		return
	}
	h.core.Metrics.ObserveBookingAttempt("rescheduled")

	respondSuccess(w, req.SessionID, "All set, you're rescheduled for "+timeutil.FormatForVoice(appt.StartUTC, rc.Location)+".", func(e *envelope) {
		e.BookingID = string(appt.ID)
		e.ConfirmationNumber = appt.PMSAppointmentID
		e.TimeSlot = &timeSlotView{
			StartUTC: appt.StartUTC.UTC().Format("2006-01-02T15:04:05Z"),
			Display:  timeutil.FormatForVoice(appt.StartUTC, rc.Location),
		}
	})
}

// CancelRequest cancels an existing appointment, identified directly by ID
// or disambiguated by phone plus optional hints.
type CancelRequest struct {
	AppointmentID  string `json:"appointmentId"`
	PatientPhone   string `json:"patientPhone" validate:"required"`
	PractitionerID string `json:"practitionerId"`
	ServiceID      string `json:"serviceId"`
	SessionID      string `json:"sessionId" validate:"required"`
	DialedNumber   string `json:"dialedNumber" validate:"required"`
}

// Cancel handles "Cancel appointment".
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	err = h.core.Coordinator.Cancel(rc.Ctx, booking.CancelRequest{
		SessionID:      ids.SessionID(req.SessionID),
		ClinicID:       rc.ClinicID,
		AppointmentID:  ids.AppointmentID(req.AppointmentID),
		CallerPhone:    normalizeAUPhone(req.PatientPhone),
		PractitionerID: ids.PractitionerID(req.PractitionerID),
		ServiceID:      ids.ServiceID(req.ServiceID),
	})
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	respondSuccess(w, req.SessionID, "Your appointment has been cancelled.", nil)
}

func (h *Handler) resolveStartTime(rc resolvedClinic, dateStr, timeStr string) (time.Time, error) {
	date, err := timeutil.ParseNaturalDate(dateStr, rc.NowLocal)
	if err != nil {
		return time.Time{}, timeutil.ErrInvalidDate
	}
	hour, minute, err := timeutil.ParseClockTime(timeStr)
	if err != nil {
		return time.Time{}, timeutil.ErrInvalidTime
	}
	startUTC, err := timeutil.CombineDateTimeLocal(date, hour, minute, rc.Location)
	if err != nil {
		return time.Time{}, err
	}
	if startUTC.Before(rc.NowLocal.UTC()) {
		return time.Time{}, timeutil.ErrInvalidTime
	}
	return startUTC, nil
}
