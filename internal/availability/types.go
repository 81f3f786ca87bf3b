// Package availability answers the three booking questions a voice agent
// can ask: all slots on a date, the earliest slot within N days, and which
// practitioners have any slot on a date. It prunes against locally stored
// schedules before ever calling the PMS, reads the tiered cache first, and
// fans out PMS calls in parallel bounded by a per-clinic concurrency limit
// and a hard wall-clock deadline.
package availability

import (
	"errors"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// ErrUseFindNextAvailable is returned when a single-day query (question A)
// is invoked without a specific date. Interpreting "no date" as "today"
// would silently answer the wrong question; the request layer must route
// such queries to FindEarliestSlot (question B) instead.
var ErrUseFindNextAvailable = errors.New("availability: query has no specific date, use find_next_available")

// Slot is one bookable start time, always UTC, for a specific practitioner
// at a specific business.
type Slot struct {
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	ServiceID      ids.ServiceID
	StartUTC       time.Time
}

// triple is the unit of schedule pruning and caching: one (practitioner,
// business, date) combination.
type triple struct {
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	Date           time.Time // date-only, UTC midnight
}

// window is the unit of PMS fan-out for a multi-day scan: one (practitioner,
// business) pair and a date span no wider than the PMS's documented ≤7-day
// per-request limit. Grouping pruned candidate days into windows, rather
// than issuing one PMS call per day, is what keeps a 14-day find-next to
// two calls instead of fourteen.
type window struct {
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	From           time.Time // date-only, UTC midnight
	To             time.Time // date-only, UTC midnight, inclusive
}

// Result is the outcome of a scan: the matched slots plus flags describing
// why the set might be smaller than the caller expects.
type Result struct {
	Slots []Slot
	// Partial is true when the hard deadline elapsed before every
	// candidate triple was scanned.
	Partial bool
	// FilteredToEmpty is true when slots existed before rejected-slot
	// filtering but none survived it — "no availability" here means
	// "nothing left after exclusions", not "the PMS had nothing".
	FilteredToEmpty bool
}

// QuestionARequest asks "all slots on date D for practitioner P (optionally
// service S) at business B".
type QuestionARequest struct {
	ClinicID       ids.ClinicID
	SessionID      ids.SessionID
	PractitionerID ids.PractitionerID
	BusinessID     ids.BusinessID
	ServiceID      ids.ServiceID
	Date           time.Time
}

// QuestionBRequest asks "earliest slot within N days for practitioner P OR
// service S, optionally scoped to business B". BusinessID is optional: when
// zero-valued the engine fans out across every business the practitioner
// (or, for a service-first search, every qualifying practitioner) is
// assigned to.
type QuestionBRequest struct {
	ClinicID        ids.ClinicID
	SessionID       ids.SessionID
	PractitionerID  ids.PractitionerID // optional when ServiceID drives the search
	ServiceID       ids.ServiceID
	BusinessID      ids.BusinessID // optional
	MaxDays         int
	Practitioners   []ids.PractitionerID // candidate practitioners for a service-first search
	PractitionerBiz map[ids.PractitionerID][]ids.BusinessID
}

// QuestionCRequest asks "which practitioners at business B have any slot on
// date D".
type QuestionCRequest struct {
	ClinicID      ids.ClinicID
	SessionID     ids.SessionID
	BusinessID    ids.BusinessID
	Date          time.Time
	Practitioners []ids.PractitionerID
}
