package pmsclient

import "github.com/wolfman30/clinicvoice-core/internal/ids"

// The DTO types below mirror the PMS wire format exactly; they exist only to
// decode JSON and are immediately converted to the domain types in types.go
// so nothing above this package ever sees a raw PMS field name.

type businessDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

func (b businessDTO) toBusiness() Business {
	return Business{ID: ids.BusinessID(b.ID), Name: b.Name, IsPrimary: b.IsPrimary}
}

type practitionerDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	Active    bool   `json:"active"`
}

func (p practitionerDTO) toPractitioner() Practitioner {
	return Practitioner{
		ID:     ids.PractitionerID(p.ID),
		First:  p.FirstName,
		Last:   p.LastName,
		Title:  p.Title,
		Active: p.Active,
	}
}

type serviceDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (s serviceDTO) toService() Service {
	return Service{ID: ids.ServiceID(s.ID), Name: s.Name, DurationMinutes: s.DurationMinutes}
}

type patientDTO struct {
	ID    string `json:"id,omitempty"`
	First string `json:"first_name"`
	Last  string `json:"last_name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

func (p patientDTO) toPatient() Patient {
	return Patient{ID: ids.PatientID(p.ID), First: p.First, Last: p.Last, Phone: p.Phone, Email: p.Email}
}

type availableTimeDTO struct {
	StartTime string `json:"start_time"`
}

type createAppointmentDTO struct {
	BusinessID     string `json:"business_id"`
	PractitionerID string `json:"practitioner_id"`
	ServiceID      string `json:"appointment_type_id"`
	PatientID      string `json:"patient_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

type appointmentDTO struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}
