package webhook

import (
	"net/http"

	"github.com/wolfman30/clinicvoice-core/internal/availability"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/timeutil"
)

// AvailablePractitionersRequest asks which practitioners at a location have
// any slot on a given date.
type AvailablePractitionersRequest struct {
	BusinessID   string `json:"businessId" validate:"required"`
	Date         string `json:"date" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	DialedNumber string `json:"dialedNumber" validate:"required"`
}

// GetAvailablePractitioners handles "Get available practitioners".
func (h *Handler) GetAvailablePractitioners(w http.ResponseWriter, r *http.Request) {
	var req AvailablePractitionersRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	date, err := timeutil.ParseNaturalDate(req.Date, rc.NowLocal)
	if err != nil {
		respondError(w, req.SessionID, timeutil.ErrInvalidDate)
		return
	}

	businessID := ids.BusinessID(req.BusinessID)
	candidates, err := h.core.Catalog.ListPractitionerCandidates(rc.Ctx, rc.ClinicID, businessID)
	if err != nil {
		h.logger.Error("webhook: list practitioners for availability failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}
	practitionerIDs := make([]ids.PractitionerID, 0, len(candidates))
	byID := make(map[ids.PractitionerID]string, len(candidates))
	for _, c := range candidates {
		pid := ids.PractitionerID(c.ID)
		practitionerIDs = append(practitionerIDs, pid)
		byID[pid] = c.Name
	}

	results, err := h.core.Engine.FindPractitionersWithAvailability(rc.Ctx, availability.QuestionCRequest{
		ClinicID:      rc.ClinicID,
		SessionID:     ids.SessionID(req.SessionID),
		BusinessID:    businessID,
		Date:          date,
		Practitioners: practitionerIDs,
	})
	if err != nil {
		h.logger.Error("webhook: find practitioners with availability failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	var views []practitionerView
	for pid := range results {
		views = append(views, practitionerView{ID: string(pid), Name: byID[pid]})
	}

	if len(views) == 0 {
		respondSuccess(w, req.SessionID, "I don't see anyone available that day. Would you like me to check another day?", func(e *envelope) {
			e.Found = boolPtr(false)
			e.Date = timeutil.FormatDateOnly(date)
		})
		return
	}

	respondSuccess(w, req.SessionID, "Here's who's available that day.", func(e *envelope) {
		e.Found = boolPtr(true)
		e.Practitioners = views
		e.Date = timeutil.FormatDateOnly(date)
	})
}

// CheckAvailabilityRequest asks for every open slot on a specific date for a
// specific practitioner (and, optionally, service) at a location.
type CheckAvailabilityRequest struct {
	BusinessID     string `json:"businessId" validate:"required"`
	PractitionerID string `json:"practitionerId" validate:"required"`
	ServiceID      string `json:"serviceId"`
	Date           string `json:"date" validate:"required"`
	SessionID      string `json:"sessionId" validate:"required"`
	DialedNumber   string `json:"dialedNumber" validate:"required"`
}

// CheckAvailability handles "Check availability specific date".
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req CheckAvailabilityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	date, err := timeutil.ParseNaturalDate(req.Date, rc.NowLocal)
	if err != nil {
		respondError(w, req.SessionID, timeutil.ErrInvalidDate)
		return
	}

	result, err := h.core.Engine.FindSlotsOnDate(rc.Ctx, availability.QuestionARequest{
		ClinicID:       rc.ClinicID,
		SessionID:      ids.SessionID(req.SessionID),
		PractitionerID: ids.PractitionerID(req.PractitionerID),
		BusinessID:     ids.BusinessID(req.BusinessID),
		ServiceID:      ids.ServiceID(req.ServiceID),
		Date:           date,
	})
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	respondAvailabilityResult(w, req.SessionID, rc, result)
}

// FindNextAvailableRequest asks for the earliest open slot within a day
// horizon, for a practitioner or a service, optionally scoped to a location.
type FindNextAvailableRequest struct {
	PractitionerID string `json:"practitionerId"`
	ServiceID      string `json:"serviceId"`
	BusinessID     string `json:"businessId"`
	MaxDays        *int   `json:"maxDays"`
	SessionID      string `json:"sessionId" validate:"required"`
	DialedNumber   string `json:"dialedNumber" validate:"required"`
}

// FindNextAvailable handles "Find next available".
func (h *Handler) FindNextAvailable(w http.ResponseWriter, r *http.Request) {
	var req FindNextAvailableRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}
	if req.PractitionerID == "" && req.ServiceID == "" {
		respondError(w, req.SessionID, errMissingInformation)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	maxDays := 14
	if req.MaxDays != nil {
		maxDays = timeutil.ClampMaxDays(*req.MaxDays)
		if maxDays == 0 {
			respondAvailabilityResult(w, req.SessionID, rc, availability.Result{})
			return
		}
	}

	qReq := availability.QuestionBRequest{
		ClinicID:       rc.ClinicID,
		SessionID:      ids.SessionID(req.SessionID),
		PractitionerID: ids.PractitionerID(req.PractitionerID),
		ServiceID:      ids.ServiceID(req.ServiceID),
		BusinessID:     ids.BusinessID(req.BusinessID),
		MaxDays:        maxDays,
	}

	if req.PractitionerID == "" && req.ServiceID != "" {
		byPractitioner, err := h.core.Catalog.PractitionersForService(rc.Ctx, rc.ClinicID, ids.ServiceID(req.ServiceID))
		if err != nil {
			h.logger.Error("webhook: practitioners for service failed", "clinic_id", rc.ClinicID, "error", err)
			respondError(w, req.SessionID, err)
			return
		}
		if len(byPractitioner) == 0 {
			respondError(w, req.SessionID, errServiceNotFound)
			return
		}
		practitioners := make([]ids.PractitionerID, 0, len(byPractitioner))
		for p := range byPractitioner {
			practitioners = append(practitioners, p)
		}
		qReq.Practitioners = practitioners
		qReq.PractitionerBiz = byPractitioner
	}

	result, err := h.core.Engine.FindEarliestSlot(rc.Ctx, qReq)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	respondAvailabilityResult(w, req.SessionID, rc, result)
}

func respondAvailabilityResult(w http.ResponseWriter, sessionID string, rc resolvedClinic, result availability.Result) {
	if len(result.Slots) == 0 {
		message := "I don't see any availability then. Would you like me to check another time?"
		if result.FilteredToEmpty {
			message = "That time's already been ruled out. Would you like me to check another time?"
		}
		respondSuccess(w, sessionID, message, func(e *envelope) {
			e.Found = boolPtr(false)
		})
		return
	}

	times := make([]string, 0, len(result.Slots))
	for _, s := range result.Slots {
		times = append(times, timeutil.FormatForVoice(s.StartUTC, rc.Location))
	}
	first := result.Slots[0]

	respondSuccess(w, sessionID, "I found some availability for you.", func(e *envelope) {
		e.Found = boolPtr(true)
		e.AvailableTimes = times
		e.TimeSlot = &timeSlotView{
			StartUTC: first.StartUTC.UTC().Format("2006-01-02T15:04:05Z"),
			Display:  timeutil.FormatForVoice(first.StartUTC, rc.Location),
		}
	})
}
