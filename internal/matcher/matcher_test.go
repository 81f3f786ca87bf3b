package matcher

import "testing"

func locationCandidates() []Candidate {
	return []Candidate{
		{ID: "loc-1", Name: "Main Street Clinic", IsPrimary: true, Ordinal: 1, Aliases: []string{"main street", "downtown"}},
		{ID: "loc-2", Name: "Westfield Branch", IsPrimary: false, Ordinal: 2},
		{ID: "loc-3", Name: "Eastside Clinic", IsPrimary: false, Ordinal: 3},
	}
}

func TestMatch_ExactNameResolves(t *testing.T) {
	outcome := Match(KindLocation, "Westfield Branch", locationCandidates())
	if outcome.Decision != DecisionResolved {
		t.Fatalf("expected resolved decision, got %s", outcome.Decision)
	}
	if outcome.Candidate == nil || outcome.Candidate.ID != "loc-2" {
		t.Fatalf("expected loc-2, got %+v", outcome.Candidate)
	}
}

func TestMatch_AliasExactResolves(t *testing.T) {
	outcome := Match(KindLocation, "downtown", locationCandidates())
	if outcome.Decision != DecisionResolved {
		t.Fatalf("expected resolved decision, got %s", outcome.Decision)
	}
	if outcome.Candidate.ID != "loc-1" {
		t.Fatalf("expected loc-1, got %+v", outcome.Candidate)
	}
}

func TestMatch_GenericTokenBonusSelectsPrimary(t *testing.T) {
	outcome := Match(KindLocation, "the main office", locationCandidates())
	if outcome.Decision == DecisionNoCandidates {
		t.Fatal("expected a decision")
	}
	if outcome.Candidate == nil || outcome.Candidate.ID != "loc-1" {
		t.Fatalf("expected primary location loc-1, got %+v", outcome.Candidate)
	}
}

func TestMatch_OrdinalReference(t *testing.T) {
	outcome := Match(KindLocation, "location 2", locationCandidates())
	if outcome.Candidate == nil || outcome.Candidate.ID != "loc-2" {
		t.Fatalf("expected loc-2 from ordinal reference, got %+v", outcome.Candidate)
	}
}

func TestMatch_NoSignalClarifies(t *testing.T) {
	outcome := Match(KindLocation, "xyz", locationCandidates())
	if outcome.Decision != DecisionClarify {
		t.Fatalf("expected clarify decision for no-signal query, got %s", outcome.Decision)
	}
}

func TestMatch_CloseScoresClarify(t *testing.T) {
	candidates := []Candidate{
		{ID: "svc-1", Name: "Deep Tissue Massage", Ordinal: 1},
		{ID: "svc-2", Name: "Deep Cleaning Massage", Ordinal: 2},
	}
	outcome := Match(KindService, "deep massage", candidates)
	if outcome.Decision != DecisionClarify {
		t.Fatalf("expected clarify when top candidates are within 0.05, got %s (ranked=%+v)", outcome.Decision, outcome.Ranked)
	}
	if len(outcome.Clarifying) < 2 {
		t.Fatalf("expected at least 2 clarifying candidates, got %d", len(outcome.Clarifying))
	}
}

func TestMatch_NoCandidates(t *testing.T) {
	outcome := Match(KindService, "anything", nil)
	if outcome.Decision != DecisionNoCandidates {
		t.Fatalf("expected no_candidates decision, got %s", outcome.Decision)
	}
}

func TestMatch_PartialMatchAsksForConfirmation(t *testing.T) {
	candidates := []Candidate{
		{ID: "prac-1", Name: "Jane Smith"},
		{ID: "prac-2", Name: "Alan Brown"},
	}
	// Near-miss substring (missing trailing letter) scores in the confirm band.
	outcome := Match(KindPractitioner, "jane smit", candidates)
	if outcome.Decision != DecisionConfirm {
		t.Fatalf("expected confirm for a near-miss substring match, got %s (ranked=%+v)", outcome.Decision, outcome.Ranked)
	}
	if outcome.Candidate == nil || outcome.Candidate.ID != "prac-1" {
		t.Fatalf("expected prac-1 to rank first, got %+v", outcome.Candidate)
	}
}
