package pmsclient

import (
	"context"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

// Credentials holds the per-clinic secrets needed to call the PMS. These
// are never read from process-wide configuration in production paths —
// callers obtain them through a CredentialSource scoped to one clinic.
type Credentials struct {
	ClinicID ids.ClinicID
	Shard    string
	Username string
	APIKey   string
}

// CredentialSource retrieves PMS credentials for a single clinic.
type CredentialSource interface {
	GetCredentials(ctx context.Context, clinicID ids.ClinicID) (Credentials, error)
}

// Business is a physical clinic location as returned by the PMS.
type Business struct {
	ID        ids.BusinessID
	Name      string
	IsPrimary bool
}

// Practitioner is a staff member as returned by the PMS.
type Practitioner struct {
	ID     ids.PractitionerID
	First  string
	Last   string
	Title  string
	Active bool
}

// Service (appointment type) as returned by the PMS.
type Service struct {
	ID              ids.ServiceID
	Name            string
	DurationMinutes int
}

// Patient as returned by the PMS.
type Patient struct {
	ID    ids.PatientID
	First string
	Last  string
	Phone string
	Email string
}

// AvailableTimesRequest requests the PMS's available_times endpoint for a
// single (business, practitioner, appointment type) triple. From/To are
// date-only and the span must be <=7 days; the client enforces this.
type AvailableTimesRequest struct {
	BusinessID     ids.BusinessID
	PractitionerID ids.PractitionerID
	ServiceID      ids.ServiceID
	From           time.Time
	To             time.Time
}

// CreateAppointmentRequest books a slot with the PMS.
type CreateAppointmentRequest struct {
	BusinessID     ids.BusinessID
	PractitionerID ids.PractitionerID
	ServiceID      ids.ServiceID
	PatientID      ids.PatientID
	StartUTC       time.Time
	EndUTC         time.Time
}

// Appointment as returned by the PMS after creation.
type Appointment struct {
	ID       string
	StartUTC time.Time
	EndUTC   time.Time
	Status   string
}
