package store

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/matcher"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
)

// CatalogRepository reads the clinic/location/practitioner/service catalog
// the matcher and availability engine resolve candidates from, and doubles
// as the pmsclient.CredentialSource.
type CatalogRepository struct {
	db db
}

// Clinic is a tenant's configuration row.
type Clinic struct {
	ID       ids.ClinicID
	Shard    string
	Timezone string
}

// ResolveClinicByDialedNumber maps the number the voice agent dialed to a
// clinic tenant. Every webhook operation starts here.
func (r *CatalogRepository) ResolveClinicByDialedNumber(ctx context.Context, dialedNumber string) (ids.ClinicID, error) {
	const q = `SELECT clinic_id FROM dialed_numbers WHERE dialed_number = $1`
	var clinicID string
	if err := r.db.QueryRow(ctx, q, dialedNumber).Scan(&clinicID); err != nil {
		return "", fmt.Errorf("store: resolve clinic by dialed number: %w", err)
	}
	return ids.ClinicID(clinicID), nil
}

func (r *CatalogRepository) GetClinic(ctx context.Context, clinicID ids.ClinicID) (Clinic, error) {
	const q = `SELECT id, shard, timezone FROM clinics WHERE id = $1`
	var c Clinic
	var id string
	if err := r.db.QueryRow(ctx, q, clinicID).Scan(&id, &c.Shard, &c.Timezone); err != nil {
		return Clinic{}, fmt.Errorf("store: get clinic: %w", err)
	}
	c.ID = ids.ClinicID(id)
	return c, nil
}

// ListClinicIDs returns every onboarded clinic, for background jobs that
// sweep per-clinic state (e.g. the cache refresher's low-usage eviction).
func (r *CatalogRepository) ListClinicIDs(ctx context.Context) ([]ids.ClinicID, error) {
	const q = `SELECT id FROM clinics ORDER BY id ASC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list clinics: %w", err)
	}
	defer rows.Close()

	var out []ids.ClinicID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan clinic id: %w", err)
		}
		out = append(out, ids.ClinicID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate clinics: %w", err)
	}
	return out, nil
}

// GetCredentials implements pmsclient.CredentialSource.
func (r *CatalogRepository) GetCredentials(ctx context.Context, clinicID ids.ClinicID) (pmsclient.Credentials, error) {
	const q = `SELECT shard, pms_username, pms_api_key FROM clinics WHERE id = $1`
	var creds pmsclient.Credentials
	creds.ClinicID = clinicID
	if err := r.db.QueryRow(ctx, q, clinicID).Scan(&creds.Shard, &creds.Username, &creds.APIKey); err != nil {
		return pmsclient.Credentials{}, fmt.Errorf("store: get pms credentials: %w", err)
	}
	return creds, nil
}

// ListLocationCandidates returns every location for a clinic as matcher
// candidates, ordinal-ordered so "location 2" style ordinal references
// resolve deterministically.
func (r *CatalogRepository) ListLocationCandidates(ctx context.Context, clinicID ids.ClinicID) ([]matcher.Candidate, error) {
	const q = `
		SELECT id, name, aliases, is_primary, ordinal FROM locations
		WHERE clinic_id = $1 ORDER BY ordinal ASC, name ASC
	`
	rows, err := r.db.Query(ctx, q, clinicID)
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()

	var out []matcher.Candidate
	for rows.Next() {
		var id, name string
		var aliases []string
		var isPrimary bool
		var ordinal int
		if err := rows.Scan(&id, &name, &aliases, &isPrimary, &ordinal); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		out = append(out, matcher.Candidate{ID: id, Name: name, Aliases: aliases, IsPrimary: isPrimary, Ordinal: ordinal})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate locations: %w", err)
	}
	return out, nil
}

// ListAllPractitionerCandidates returns every active practitioner in the
// clinic as matcher candidates, for operations that resolve a practitioner
// by name without first scoping to a location (e.g. practitioner info
// lookups reachable from any of the clinic's dialed numbers).
func (r *CatalogRepository) ListAllPractitionerCandidates(ctx context.Context, clinicID ids.ClinicID) ([]matcher.Candidate, error) {
	const q = `
		SELECT id, first_name, last_name, aliases
		FROM practitioners
		WHERE clinic_id = $1 AND active
		ORDER BY last_name, first_name
	`
	rows, err := r.db.Query(ctx, q, clinicID)
	if err != nil {
		return nil, fmt.Errorf("store: list all practitioners: %w", err)
	}
	defer rows.Close()

	var out []matcher.Candidate
	for rows.Next() {
		var id, first, last string
		var aliases []string
		if err := rows.Scan(&id, &first, &last, &aliases); err != nil {
			return nil, fmt.Errorf("store: scan practitioner: %w", err)
		}
		out = append(out, matcher.Candidate{ID: id, Name: first + " " + last, Aliases: aliases})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate all practitioners: %w", err)
	}
	return out, nil
}

// Practitioner is a catalog projection used to populate response payloads.
type Practitioner struct {
	ID        ids.PractitionerID
	FirstName string
	LastName  string
	Title     string
}

// GetPractitioner returns one practitioner's display fields.
func (r *CatalogRepository) GetPractitioner(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID) (Practitioner, error) {
	const q = `SELECT id, first_name, last_name, title FROM practitioners WHERE clinic_id = $1 AND id = $2`
	var p Practitioner
	var id string
	if err := r.db.QueryRow(ctx, q, clinicID, practitionerID).Scan(&id, &p.FirstName, &p.LastName, &p.Title); err != nil {
		return Practitioner{}, fmt.Errorf("store: get practitioner: %w", err)
	}
	p.ID = ids.PractitionerID(id)
	return p, nil
}

// Location is a catalog projection used to populate response payloads.
type Location struct {
	ID   ids.BusinessID
	Name string
}

// GetLocation returns one location's display fields.
func (r *CatalogRepository) GetLocation(ctx context.Context, clinicID ids.ClinicID, businessID ids.BusinessID) (Location, error) {
	const q = `SELECT id, name FROM locations WHERE clinic_id = $1 AND id = $2`
	var l Location
	var id string
	if err := r.db.QueryRow(ctx, q, clinicID, businessID).Scan(&id, &l.Name); err != nil {
		return Location{}, fmt.Errorf("store: get location: %w", err)
	}
	l.ID = ids.BusinessID(id)
	return l, nil
}

// Service is a catalog projection used to populate response payloads.
type Service struct {
	ID              ids.ServiceID
	Name            string
	DurationMinutes int
}

// GetService returns one service's display fields.
func (r *CatalogRepository) GetService(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID) (Service, error) {
	const q = `SELECT id, name, duration_minutes FROM services WHERE clinic_id = $1 AND id = $2`
	var s Service
	var id string
	if err := r.db.QueryRow(ctx, q, clinicID, serviceID).Scan(&id, &s.Name, &s.DurationMinutes); err != nil {
		return Service{}, fmt.Errorf("store: get service: %w", err)
	}
	s.ID = ids.ServiceID(id)
	return s, nil
}

// PractitionerLocations returns the locations a practitioner is assigned to.
func (r *CatalogRepository) PractitionerLocations(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID) ([]ids.BusinessID, error) {
	const q = `
		SELECT pl.location_id
		FROM practitioner_locations pl
		JOIN practitioners p ON p.id = pl.practitioner_id
		WHERE p.clinic_id = $1 AND pl.practitioner_id = $2
	`
	rows, err := r.db.Query(ctx, q, clinicID, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("store: practitioner locations: %w", err)
	}
	defer rows.Close()

	var out []ids.BusinessID
	for rows.Next() {
		var locationID string
		if err := rows.Scan(&locationID); err != nil {
			return nil, fmt.Errorf("store: scan practitioner location: %w", err)
		}
		out = append(out, ids.BusinessID(locationID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate practitioner locations: %w", err)
	}
	return out, nil
}

// ListPractitionerCandidates returns practitioners at a location as matcher
// candidates, named "First Last" with "Doctor <Title>" style prefixes left
// to the caller (the matcher scores on the raw name).
func (r *CatalogRepository) ListPractitionerCandidates(ctx context.Context, clinicID ids.ClinicID, businessID ids.BusinessID) ([]matcher.Candidate, error) {
	const q = `
		SELECT p.id, p.first_name, p.last_name, p.aliases
		FROM practitioners p
		JOIN practitioner_locations pl ON pl.practitioner_id = p.id
		WHERE p.clinic_id = $1 AND pl.location_id = $2 AND p.active
		ORDER BY p.last_name, p.first_name
	`
	rows, err := r.db.Query(ctx, q, clinicID, businessID)
	if err != nil {
		return nil, fmt.Errorf("store: list practitioners: %w", err)
	}
	defer rows.Close()

	var out []matcher.Candidate
	for rows.Next() {
		var id, first, last string
		var aliases []string
		if err := rows.Scan(&id, &first, &last, &aliases); err != nil {
			return nil, fmt.Errorf("store: scan practitioner: %w", err)
		}
		out = append(out, matcher.Candidate{ID: id, Name: first + " " + last, Aliases: aliases})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate practitioners: %w", err)
	}
	return out, nil
}

// ListServiceCandidates returns bookable services offered by a practitioner
// as matcher candidates.
func (r *CatalogRepository) ListServiceCandidates(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID) ([]matcher.Candidate, error) {
	const q = `
		SELECT s.id, s.name, s.aliases
		FROM services s
		JOIN practitioner_services ps ON ps.service_id = s.id
		WHERE s.clinic_id = $1 AND ps.practitioner_id = $2
		ORDER BY s.name
	`
	rows, err := r.db.Query(ctx, q, clinicID, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var out []matcher.Candidate
	for rows.Next() {
		var id, name string
		var aliases []string
		if err := rows.Scan(&id, &name, &aliases); err != nil {
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		out = append(out, matcher.Candidate{ID: id, Name: name, Aliases: aliases})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate services: %w", err)
	}
	return out, nil
}

// PractitionersForService returns every active practitioner qualified for a
// service, along with the locations each is assigned to, for the
// availability engine's service-first multi-practitioner fan-out.
func (r *CatalogRepository) PractitionersForService(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID) (map[ids.PractitionerID][]ids.BusinessID, error) {
	const q = `
		SELECT p.id, pl.location_id
		FROM practitioners p
		JOIN practitioner_services ps ON ps.practitioner_id = p.id
		JOIN practitioner_locations pl ON pl.practitioner_id = p.id
		WHERE p.clinic_id = $1 AND ps.service_id = $2 AND p.active
	`
	rows, err := r.db.Query(ctx, q, clinicID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("store: practitioners for service: %w", err)
	}
	defer rows.Close()

	out := make(map[ids.PractitionerID][]ids.BusinessID)
	for rows.Next() {
		var practitionerID, locationID string
		if err := rows.Scan(&practitionerID, &locationID); err != nil {
			return nil, fmt.Errorf("store: scan practitioner-service row: %w", err)
		}
		pid := ids.PractitionerID(practitionerID)
		out[pid] = append(out[pid], ids.BusinessID(locationID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate practitioner-service rows: %w", err)
	}
	return out, nil
}

// ServiceDuration returns a service's default appointment length, used when
// the caller doesn't name a practitioner-specific override.
func (r *CatalogRepository) ServiceDuration(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID) (int, error) {
	const q = `SELECT duration_minutes FROM services WHERE clinic_id = $1 AND id = $2`
	var minutes int
	if err := r.db.QueryRow(ctx, q, clinicID, serviceID).Scan(&minutes); err != nil {
		return 0, fmt.Errorf("store: service duration: %w", err)
	}
	return minutes, nil
}
