package webhook

import (
	"encoding/json"
	"net/http"
)

// envelope is the response shape every webhook operation shares: success
// flag, session echo, a voice-ready message, and on error a stable code.
// Entity data nests under named objects (location, practitioner, service,
// timeSlot), never as flat top-level fields.
type envelope struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`

	Location           *locationView      `json:"location,omitempty"`
	Practitioner       *practitionerView  `json:"practitioner,omitempty"`
	Service            *serviceView       `json:"service,omitempty"`
	TimeSlot           *timeSlotView      `json:"timeSlot,omitempty"`
	Services           []serviceView      `json:"services,omitempty"`
	Locations          []locationView     `json:"locations,omitempty"`
	Practitioners      []practitionerView `json:"practitioners,omitempty"`
	Options            []locationView     `json:"options,omitempty"`
	AvailableTimes     []string           `json:"available_times,omitempty"`
	Date               string             `json:"date,omitempty"`
	Resolved           *bool              `json:"resolved,omitempty"`
	NeedsClarification *bool              `json:"needsClarification,omitempty"`
	Confidence         *float64           `json:"confidence,omitempty"`
	LocationConfirmed  *bool              `json:"locationConfirmed,omitempty"`
	Found              *bool              `json:"found,omitempty"`
	BookingID          string             `json:"bookingId,omitempty"`
	ConfirmationNumber string             `json:"confirmationNumber,omitempty"`
	PatientName        string             `json:"patientName,omitempty"`
}

type locationView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type practitionerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type serviceView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
}

type timeSlotView struct {
	StartUTC string `json:"startUtc"`
	Display  string `json:"display"`
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondSuccess(w http.ResponseWriter, sessionID, message string, fill func(*envelope)) {
	env := envelope{Success: true, SessionID: sessionID, Message: message}
	if fill != nil {
		fill(&env)
	}
	writeJSON(w, http.StatusOK, env)
}

func respondError(w http.ResponseWriter, sessionID string, err error) {
	status, code, message := classifyError(err)
	writeJSON(w, status, envelope{
		Success:   false,
		SessionID: sessionID,
		Message:   message,
		Error:     code,
	})
}
