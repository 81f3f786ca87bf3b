package webhook

import (
	"net/http"
	"strings"

	"github.com/wolfman30/clinicvoice-core/internal/matcher"
)

// ResolveLocationRequest resolves a caller's free-text location reference
// against the clinic's catalog of locations reachable from dialedNumber.
type ResolveLocationRequest struct {
	LocationQuery string `json:"locationQuery" validate:"required"`
	SessionID     string `json:"sessionId" validate:"required"`
	DialedNumber  string `json:"dialedNumber" validate:"required"`
	CallerPhone   string `json:"callerPhone"`
}

// ResolveLocation handles "Resolve location".
func (h *Handler) ResolveLocation(w http.ResponseWriter, r *http.Request) {
	var req ResolveLocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	rc, err := h.core.resolveClinic(r.Context(), req.DialedNumber)
	if err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	candidates, err := h.core.Catalog.ListLocationCandidates(rc.Ctx, rc.ClinicID)
	if err != nil {
		h.core.Logger.Error("webhook: list location candidates failed", "clinic_id", rc.ClinicID, "error", err)
		respondError(w, req.SessionID, err)
		return
	}

	outcome := matcher.Match(matcher.KindLocation, req.LocationQuery, candidates)
	writeLocationOutcome(w, req.SessionID, outcome)
}

// ConfirmLocationRequest echoes back the options a prior ResolveLocation
// call returned, plus the caller's spoken response to them, since the voice
// agent carries no state of its own between calls.
type ConfirmLocationRequest struct {
	UserResponse string             `json:"userResponse" validate:"required"`
	Options      []locationOptionIn `json:"options" validate:"required,min=1,dive"`
	SessionID    string             `json:"sessionId" validate:"required"`
	DialedNumber string             `json:"dialedNumber" validate:"required"`
}

type locationOptionIn struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

var affirmativeResponses = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "correct": true, "that's right": true, "right": true,
}

// ConfirmLocation handles "Confirm location".
func (h *Handler) ConfirmLocation(w http.ResponseWriter, r *http.Request) {
	var req ConfirmLocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	if _, err := h.core.resolveClinic(r.Context(), req.DialedNumber); err != nil {
		respondError(w, req.SessionID, err)
		return
	}

	response := strings.ToLower(strings.TrimSpace(req.UserResponse))
	if len(req.Options) == 1 && affirmativeResponses[response] {
		opt := req.Options[0]
		respondSuccess(w, req.SessionID, "Great, I've got that location confirmed.", func(e *envelope) {
			e.LocationConfirmed = boolPtr(true)
			e.Location = &locationView{ID: opt.ID, Name: opt.Name}
		})
		return
	}

	candidates := make([]matcher.Candidate, len(req.Options))
	for i, o := range req.Options {
		candidates[i] = matcher.Candidate{ID: o.ID, Name: o.Name, Ordinal: i + 1}
	}
	outcome := matcher.Match(matcher.KindLocation, req.UserResponse, candidates)
	if outcome.Decision == matcher.DecisionResolved || outcome.Decision == matcher.DecisionConfirm {
		respondSuccess(w, req.SessionID, "Got it, thanks.", func(e *envelope) {
			e.LocationConfirmed = boolPtr(true)
			e.Location = &locationView{ID: outcome.Candidate.ID, Name: outcome.Candidate.Name}
		})
		return
	}

	respondSuccess(w, req.SessionID, "Sorry, I didn't catch that. Which location did you mean?", func(e *envelope) {
		e.LocationConfirmed = boolPtr(false)
		e.Options = toLocationOptions(outcome)
		e.NeedsClarification = boolPtr(true)
	})
}

func writeLocationOutcome(w http.ResponseWriter, sessionID string, outcome matcher.Outcome) {
	switch outcome.Decision {
	case matcher.DecisionResolved:
		respondSuccess(w, sessionID, "Great, I've got that location.", func(e *envelope) {
			e.Resolved = boolPtr(true)
			e.NeedsClarification = boolPtr(false)
			e.Location = &locationView{ID: outcome.Candidate.ID, Name: outcome.Candidate.Name}
			e.Confidence = floatPtr(outcome.Ranked[0].Score)
		})
	case matcher.DecisionConfirm:
		respondSuccess(w, sessionID, "Did you mean "+outcome.Candidate.Name+"?", func(e *envelope) {
			e.Resolved = boolPtr(false)
			e.NeedsClarification = boolPtr(true)
			e.Location = &locationView{ID: outcome.Candidate.ID, Name: outcome.Candidate.Name}
			e.Confidence = floatPtr(outcome.Ranked[0].Score)
		})
	case matcher.DecisionClarify:
		respondSuccess(w, sessionID, "Which of these locations did you mean?", func(e *envelope) {
			e.Resolved = boolPtr(false)
			e.NeedsClarification = boolPtr(true)
			e.Options = toLocationOptions(outcome)
			e.Confidence = floatPtr(outcome.Ranked[0].Score)
		})
	default:
		respondSuccess(w, sessionID, "Sorry, I couldn't find any locations for this clinic.", func(e *envelope) {
			e.Resolved = boolPtr(false)
			e.NeedsClarification = boolPtr(false)
		})
	}
}

func toLocationOptions(outcome matcher.Outcome) []locationView {
	results := outcome.Clarifying
	if results == nil {
		results = outcome.Ranked
	}
	options := make([]locationView, 0, len(results))
	for _, r := range results {
		options = append(options, locationView{ID: r.Candidate.ID, Name: r.Candidate.Name})
	}
	return options
}
