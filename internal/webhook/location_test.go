package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/clinicvoice-core/internal/matcher"
)

func TestWriteLocationOutcomeResolved(t *testing.T) {
	outcome := matcher.Match(matcher.KindLocation, "downtown", []matcher.Candidate{
		{ID: "loc-1", Name: "Downtown Clinic"},
		{ID: "loc-2", Name: "Uptown Clinic"},
	})

	rec := httptest.NewRecorder()
	writeLocationOutcome(rec, "session-1", outcome)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.Resolved == nil || !*env.Resolved {
		t.Fatalf("expected resolved=true, got %+v", env.Resolved)
	}
	if env.Location == nil || env.Location.ID != "loc-1" {
		t.Fatalf("expected location loc-1, got %+v", env.Location)
	}
}

func TestWriteLocationOutcomeClarify(t *testing.T) {
	outcome := matcher.Match(matcher.KindLocation, "clinic", []matcher.Candidate{
		{ID: "loc-1", Name: "Downtown Clinic"},
		{ID: "loc-2", Name: "Uptown Clinic"},
	})

	rec := httptest.NewRecorder()
	writeLocationOutcome(rec, "session-1", outcome)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.NeedsClarification == nil || !*env.NeedsClarification {
		t.Fatalf("expected needsClarification=true, got %+v", env.NeedsClarification)
	}
	if len(env.Options) < 2 {
		t.Fatalf("expected clarification options, got %+v", env.Options)
	}
}

func TestWriteLocationOutcomeNoCandidates(t *testing.T) {
	outcome := matcher.Match(matcher.KindLocation, "anything", nil)

	rec := httptest.NewRecorder()
	writeLocationOutcome(rec, "session-1", outcome)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Resolved == nil || *env.Resolved {
		t.Fatalf("expected resolved=false when clinic has no locations")
	}
}
