package webhook

import (
	"errors"
	"net/http"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/matcher"
)

// resolvePractitioner matches a free-text practitioner name against the
// clinic's full roster and applies the matcher's decision policy, returning
// the resolved candidate or a request-layer error describing why it
// couldn't resolve outright.
func resolvePractitionerByName(outcome matcher.Outcome) (*matcher.Candidate, error) {
	switch outcome.Decision {
	case matcher.DecisionResolved:
		return outcome.Candidate, nil
	case matcher.DecisionConfirm:
		return outcome.Candidate, nil
	case matcher.DecisionClarify:
		return nil, errPractitionerClarifyNeeded
	default:
		return nil, errPractitionerNotFound
	}
}

// PractitionerServicesRequest asks which services a named practitioner
// offers.
type PractitionerServicesRequest struct {
	Practitioner string `json:"practitioner" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	DialedNumber string `json:"dialedNumber" validate:"required"`
}

// GetPractitionerServices handles "Get practitioner services".
func (h *Handler) GetPractitionerServices(w http.ResponseWriter, r *http.Request) {
	var req PractitionerServicesRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	candidates, err := h.core.Catalog.ListAllPractitionerCandidates(rc.Ctx, rc.ClinicID)
	if err != nil {
		h.logger.Error("webhook: list practitioner candidates failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	outcome := matcher.Match(matcher.KindPractitioner, req.Practitioner, candidates)
	practitioner, err := resolvePractitionerByName(outcome)
	if err != nil {
		respondPractitionerClarification(w, req.SessionID, err, outcome)
		return
	}

	services, err := h.core.Catalog.ListServiceCandidates(rc.Ctx, rc.ClinicID, ids.PractitionerID(practitioner.ID))
	if err != nil {
		h.logger.Error("webhook: list service candidates failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}
	if len(services) == 0 {
		respondError(w, req.SessionID, errServiceNotFound)
		return
	}

	views := make([]serviceView, 0, len(services))
	for _, c := range services {
		svc, err := h.core.Catalog.GetService(rc.Ctx, rc.ClinicID, ids.ServiceID(c.ID))
		if err != nil {
			continue
		}
		views = append(views, serviceView{ID: string(svc.ID), Name: svc.Name, DurationMinutes: svc.DurationMinutes})
	}

	respondSuccess(w, req.SessionID, "Here's what "+practitioner.Name+" offers.", func(e *envelope) {
		e.Practitioner = &practitionerView{ID: practitioner.ID, Name: practitioner.Name}
		e.Services = views
	})
}

// PractitionerInfoRequest asks for a named practitioner's display info and
// the locations they see patients at.
type PractitionerInfoRequest struct {
	Practitioner string `json:"practitioner" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	DialedNumber string `json:"dialedNumber" validate:"required"`
}

// GetPractitionerInfo handles "Get practitioner info".
func (h *Handler) GetPractitionerInfo(w http.ResponseWriter, r *http.Request) {
	var req PractitionerInfoRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	candidates, err := h.core.Catalog.ListAllPractitionerCandidates(rc.Ctx, rc.ClinicID)
	if err != nil {
		h.logger.Error("webhook: list practitioner candidates failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	outcome := matcher.Match(matcher.KindPractitioner, req.Practitioner, candidates)
	candidate, err := resolvePractitionerByName(outcome)
	if err != nil {
		respondPractitionerClarification(w, req.SessionID, err, outcome)
		return
	}

	practitioner, err := h.core.Catalog.GetPractitioner(rc.Ctx, rc.ClinicID, ids.PractitionerID(candidate.ID))
	if err != nil {
		h.logger.Error("webhook: get practitioner failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, errPractitionerNotFound)
		return
	}

	businessIDs, err := h.core.Catalog.PractitionerLocations(rc.Ctx, rc.ClinicID, ids.PractitionerID(candidate.ID))
	if err != nil {
		h.logger.Error("webhook: practitioner locations failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	locations := make([]locationView, 0, len(businessIDs))
	for _, bid := range businessIDs {
		loc, err := h.core.Catalog.GetLocation(rc.Ctx, rc.ClinicID, bid)
		if err != nil {
			continue
		}
		locations = append(locations, locationView{ID: string(loc.ID), Name: loc.Name})
	}

	name := practitioner.FirstName + " " + practitioner.LastName
	respondSuccess(w, req.SessionID, "Here's what I have for "+name+".", func(e *envelope) {
		e.Practitioner = &practitionerView{ID: string(practitioner.ID), Name: name, Title: practitioner.Title}
		e.Locations = locations
	})
}

// LocationPractitionersRequest asks which practitioners see patients at a
// specific location.
type LocationPractitionersRequest struct {
	BusinessID   string `json:"businessId" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	DialedNumber string `json:"dialedNumber" validate:"required"`
}

// GetLocationPractitioners handles "Get location practitioners".
func (h *Handler) GetLocationPractitioners(w http.ResponseWriter, r *http.Request) {
	var req LocationPractitionersRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	businessID := ids.BusinessID(req.BusinessID)
	if _, err := h.core.Catalog.GetLocation(rc.Ctx, rc.ClinicID, businessID); err != nil {
		respondError(w, req.SessionID, errInvalidBusinessID)
		return
	}

	candidates, err := h.core.Catalog.ListPractitionerCandidates(rc.Ctx, rc.ClinicID, businessID)
	if err != nil {
		h.logger.Error("webhook: list location practitioners failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	views := make([]practitionerView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, practitionerView{ID: c.ID, Name: c.Name})
	}

	respondSuccess(w, req.SessionID, "Here are the practitioners at that location.", func(e *envelope) {
		e.Practitioners = views
	})
}

func respondPractitionerClarification(w http.ResponseWriter, sessionID string, err error, outcome matcher.Outcome) {
	if !errors.Is(err, errPractitionerClarifyNeeded) {
		respondError(w, sessionID, err)
		return
	}
	respondSuccess(w, sessionID, "I found a few practitioners that might match. Could you clarify which one?", func(e *envelope) {
		e.NeedsClarification = boolPtr(true)
		options := make([]practitionerView, 0, len(outcome.Clarifying))
		for _, r := range outcome.Clarifying {
			options = append(options, practitionerView{ID: r.Candidate.ID, Name: r.Candidate.Name})
		}
		e.Practitioners = options
	})
}
