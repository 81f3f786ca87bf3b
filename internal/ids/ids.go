// Package ids defines distinct nominal types for every entity identifier
// used by the core, so that a practitioner ID can never be passed where a
// business ID is expected without a compile error.
package ids

// ClinicID identifies a clinic tenant.
type ClinicID string

// BusinessID identifies a physical location (a.k.a. business) within a clinic.
type BusinessID string

// PractitionerID identifies a staff member.
type PractitionerID string

// ServiceID identifies a bookable appointment type.
type ServiceID string

// PatientID identifies a patient record.
type PatientID string

// AppointmentID identifies a booked appointment.
type AppointmentID string

// SessionID identifies a single voice call.
type SessionID string

func (c ClinicID) String() string       { return string(c) }
func (b BusinessID) String() string     { return string(b) }
func (p PractitionerID) String() string { return string(p) }
func (s ServiceID) String() string      { return string(s) }
func (p PatientID) String() string      { return string(p) }
func (a AppointmentID) String() string  { return string(a) }
func (s SessionID) String() string      { return string(s) }
