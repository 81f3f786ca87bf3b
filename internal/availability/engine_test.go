package availability

import (
	"context"
	"testing"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

type fakeSchedule struct {
	worksOn map[string]bool
}

func (f fakeSchedule) WorksOn(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) (bool, error) {
	key := string(practitionerID) + "|" + string(businessID) + "|" + date.Format("2006-01-02")
	v, ok := f.worksOn[key]
	if !ok {
		return true, nil
	}
	return v, nil
}

type fakeRejected struct {
	rejected map[string]bool
}

func (f fakeRejected) IsRejected(ctx context.Context, sessionID ids.SessionID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool {
	key := string(practitionerID) + "|" + string(businessID) + "|" + slotStart.Format(time.RFC3339)
	return f.rejected[key]
}

type noFailedAttempts struct{}

func (noFailedAttempts) IsRecentlyFailed(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool {
	return false
}

func TestFindSlotsOnDate_RequiresDate(t *testing.T) {
	engine := New(Config{})
	_, err := engine.FindSlotsOnDate(context.Background(), QuestionARequest{})
	if err != ErrUseFindNextAvailable {
		t.Fatalf("expected ErrUseFindNextAvailable, got %v", err)
	}
}

func TestFindSlotsOnDate_PrunesUnscheduledDates(t *testing.T) {
	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	schedule := fakeSchedule{worksOn: map[string]bool{
		"prac-1|biz-1|2025-07-16": false,
	}}
	engine := New(Config{Schedule: schedule, RejectedSlots: fakeRejected{}, FailedAttempts: noFailedAttempts{}})

	result, err := engine.FindSlotsOnDate(context.Background(), QuestionARequest{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", Date: date,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Slots) != 0 {
		t.Fatalf("expected no slots for a pruned date, got %d", len(result.Slots))
	}
}

func TestFindSlotsOnDate_FiltersRejectedSlots(t *testing.T) {
	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	slotTime := date.Add(9 * time.Hour)

	engine := New(Config{
		Schedule:       fakeSchedule{worksOn: map[string]bool{}},
		RejectedSlots:  fakeRejected{rejected: map[string]bool{"prac-1|biz-1|" + slotTime.Format(time.RFC3339): true}},
		FailedAttempts: noFailedAttempts{},
	})

	// No cache/pms configured, so scan returns nothing to filter in the
	// first place; this test instead exercises finalize() directly via a
	// fabricated slot list through the rejected-slot predicate.
	result := engine.finalize(context.Background(), "session-1", "clinic-1", []Slot{
		{PractitionerID: "prac-1", BusinessID: "biz-1", StartUTC: slotTime},
	}, false)

	if len(result.Slots) != 0 {
		t.Fatalf("expected rejected slot to be filtered, got %d", len(result.Slots))
	}
	if !result.FilteredToEmpty {
		t.Fatal("expected FilteredToEmpty to be true when filtering removes all slots")
	}
}

func TestFinalize_SortsChronologically(t *testing.T) {
	engine := New(Config{})
	base := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	result := engine.finalize(context.Background(), "session-1", "clinic-1", []Slot{
		{PractitionerID: "p1", BusinessID: "b1", StartUTC: base.Add(2 * time.Hour)},
		{PractitionerID: "p1", BusinessID: "b1", StartUTC: base.Add(1 * time.Hour)},
	}, false)

	if len(result.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(result.Slots))
	}
	if !result.Slots[0].StartUTC.Before(result.Slots[1].StartUTC) {
		t.Fatal("expected slots sorted chronologically")
	}
}

func TestCandidateTriplesForQuestionB_UsesPractitionerBusinesses(t *testing.T) {
	engine := New(Config{})
	triples := engine.candidateTriplesForQuestionB(QuestionBRequest{
		ClinicID:        "clinic-1",
		Practitioners:   []ids.PractitionerID{"prac-1"},
		PractitionerBiz: map[ids.PractitionerID][]ids.BusinessID{"prac-1": {"biz-1", "biz-2"}},
		MaxDays:         3,
	})
	if len(triples) != 6 {
		t.Fatalf("expected 2 businesses * 3 days = 6 triples, got %d", len(triples))
	}
}

func triplesOverDays(practitionerID ids.PractitionerID, businessID ids.BusinessID, start time.Time, days int) []triple {
	out := make([]triple, 0, days)
	for d := 0; d < days; d++ {
		out = append(out, triple{PractitionerID: practitionerID, BusinessID: businessID, Date: start.AddDate(0, 0, d)})
	}
	return out
}

func TestWindowsFromTriples_SixDaySpanIsOneWindow(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	windows := windowsFromTriples(triplesOverDays("prac-1", "biz-1", start, 6))

	if len(windows) != 1 {
		t.Fatalf("expected a 6-day span to fit in 1 window, got %d", len(windows))
	}
	if !windows[0].From.Equal(start) || !windows[0].To.Equal(start.AddDate(0, 0, 5)) {
		t.Fatalf("expected window to span the full 6 days, got %v..%v", windows[0].From, windows[0].To)
	}
}

func TestWindowsFromTriples_FourteenDaySpanIsTwoWindows(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	windows := windowsFromTriples(triplesOverDays("prac-1", "biz-1", start, 14))

	if len(windows) != 2 {
		t.Fatalf("expected a 14-day span to split into 2 windows (ceil(14/7)), got %d", len(windows))
	}
}

func TestWindowsFromTriples_GroupsByPractitionerAndBusiness(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	var pruned []triple
	pruned = append(pruned, triplesOverDays("prac-1", "biz-1", start, 3)...)
	pruned = append(pruned, triplesOverDays("prac-2", "biz-1", start, 3)...)

	windows := windowsFromTriples(pruned)
	if len(windows) != 2 {
		t.Fatalf("expected one window per practitioner, got %d", len(windows))
	}
}

func TestViableDaySet_MarksExactlyPrunedDays(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	pruned := []triple{{PractitionerID: "prac-1", BusinessID: "biz-1", Date: start}}

	viable := viableDaySet(pruned)
	if !viable[triple{PractitionerID: "prac-1", BusinessID: "biz-1", Date: start}] {
		t.Fatal("expected the pruned day to be marked viable")
	}
	if viable[triple{PractitionerID: "prac-1", BusinessID: "biz-1", Date: start.AddDate(0, 0, 1)}] {
		t.Fatal("expected a day absent from pruned to not be marked viable")
	}
}
