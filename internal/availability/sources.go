package availability

import (
	"context"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// ScheduleSource answers whether a practitioner works at a business on a
// given date, from the locally stored schedule. This is the sole pruning
// mechanism that keeps wall-clock latency bounded, since the PMS itself
// exposes no working-hours endpoint.
type ScheduleSource interface {
	WorksOn(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, date time.Time) (bool, error)
}

// RejectedSlotSource reports slots the current session has already turned
// down, so the engine never re-offers them.
type RejectedSlotSource interface {
	IsRejected(ctx context.Context, sessionID ids.SessionID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool
}

// FailedAttemptSource reports slots that recently failed to book (PMS
// reported slot_taken after the cache said the slot was open), so they are
// not offered again until the next authoritative refresh clears them.
type FailedAttemptSource interface {
	IsRecentlyFailed(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, slotStart time.Time) bool
}
