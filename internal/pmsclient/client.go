// Package pmsclient is the single entry point for all outbound calls to the
// external practice-management system (PMS). It owns credential retrieval,
// request construction, link-traversal pagination, rate-limit backoff, and
// the typed error taxonomy — nothing above this layer talks HTTP to the PMS.
package pmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxInFlight   = 6
	defaultMaxRetries    = 4
	defaultBackoffFloor  = 200 * time.Millisecond
	defaultBackoffCeil   = 8 * time.Second
	defaultRatePerSecond = 1.0 // ~60/min documented PMS budget
	maxAvailabilitySpan  = 7 * 24 * time.Hour
)

// FactoryConfig configures everything a Factory needs to mint per-clinic
// clients sharing one HTTP transport and concurrency policy.
type FactoryConfig struct {
	HostTemplate   string // e.g. "https://api.%s.example-pms.com/v1", %s = shard
	HTTPClient     *http.Client
	Credentials    CredentialSource
	MaxInFlight    int64
	MaxRetries     int
	BackoffCeiling time.Duration
	RatePerSecond  float64
	Logger         *logging.Logger
}

// Factory mints clinic-scoped Clients, each with its own rate limiter and
// concurrency semaphore so one clinic's traffic can never starve another's.
type Factory struct {
	cfg FactoryConfig

	mu       chanMutex
	limiters map[ids.ClinicID]*rate.Limiter
	sems     map[ids.ClinicID]*semaphore.Weighted
}

// chanMutex is a trivial mutex implemented with a buffered channel, matching
// the lightweight synchronization style used throughout the PMS client.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

// NewFactory constructs a Factory, applying defaults for any zero-valued
// concurrency/backoff settings.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = defaultBackoffCeil
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Factory{
		cfg:      cfg,
		mu:       newChanMutex(),
		limiters: make(map[ids.ClinicID]*rate.Limiter),
		sems:     make(map[ids.ClinicID]*semaphore.Weighted),
	}
}

// ForClinic returns a Client scoped to clinicID, reusing the clinic's rate
// limiter and semaphore across calls so the per-clinic in-flight ceiling is
// enforced process-wide, not per-request.
func (f *Factory) ForClinic(ctx context.Context, clinicID ids.ClinicID) (*Client, error) {
	creds, err := f.cfg.Credentials.GetCredentials(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("pmsclient: load credentials for clinic %s: %w", clinicID, err)
	}

	f.mu.Lock()
	limiter, ok := f.limiters[clinicID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RatePerSecond), int(f.cfg.MaxInFlight))
		f.limiters[clinicID] = limiter
	}
	sem, ok := f.sems[clinicID]
	if !ok {
		sem = semaphore.NewWeighted(f.cfg.MaxInFlight)
		f.sems[clinicID] = sem
	}
	f.mu.Unlock()

	return &Client{
		clinicID:       clinicID,
		baseURL:        fmt.Sprintf(f.cfg.HostTemplate, creds.Shard),
		creds:          creds,
		httpClient:     f.cfg.HTTPClient,
		limiter:        limiter,
		sem:            sem,
		maxRetries:     f.cfg.MaxRetries,
		backoffCeiling: f.cfg.BackoffCeiling,
		logger:         f.cfg.Logger,
	}, nil
}

// Client is a single-clinic PMS adapter. It never reads process-wide
// configuration: every field it needs comes from Factory.ForClinic.
type Client struct {
	clinicID       ids.ClinicID
	baseURL        string
	creds          Credentials
	httpClient     *http.Client
	limiter        *rate.Limiter
	sem            *semaphore.Weighted
	maxRetries     int
	backoffCeiling time.Duration
	logger         *logging.Logger
}

// page is the generic envelope returned by list endpoints; Next is the
// link-traversal cursor (absolute URL) or empty when exhausted.
type page[T any] struct {
	Data []T    `json:"data"`
	Next string `json:"next,omitempty"`
}

// GetBusinesses returns every location registered for the clinic.
func (c *Client) GetBusinesses(ctx context.Context) ([]Business, error) {
	var out []Business
	err := c.paginate(ctx, "/businesses", nil, func(raw json.RawMessage) error {
		var p page[businessDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, b := range p.Data {
			out = append(out, b.toBusiness())
		}
		return nil
	})
	return out, err
}

// GetPractitioners returns every practitioner registered for the clinic.
func (c *Client) GetPractitioners(ctx context.Context) ([]Practitioner, error) {
	var out []Practitioner
	err := c.paginate(ctx, "/practitioners", nil, func(raw json.RawMessage) error {
		var p page[practitionerDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, pr := range p.Data {
			out = append(out, pr.toPractitioner())
		}
		return nil
	})
	return out, err
}

// GetBusinessPractitioners returns the practitioners assigned to a business.
func (c *Client) GetBusinessPractitioners(ctx context.Context, businessID ids.BusinessID) ([]Practitioner, error) {
	var out []Practitioner
	path := fmt.Sprintf("/businesses/%s/practitioners", url.PathEscape(string(businessID)))
	err := c.paginate(ctx, path, nil, func(raw json.RawMessage) error {
		var p page[practitionerDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, pr := range p.Data {
			out = append(out, pr.toPractitioner())
		}
		return nil
	})
	return out, err
}

// GetAppointmentTypes returns every service the clinic offers.
func (c *Client) GetAppointmentTypes(ctx context.Context) ([]Service, error) {
	var out []Service
	err := c.paginate(ctx, "/appointment_types", nil, func(raw json.RawMessage) error {
		var p page[serviceDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, s := range p.Data {
			out = append(out, s.toService())
		}
		return nil
	})
	return out, err
}

// GetPractitionerAppointmentTypes returns the services a practitioner performs.
func (c *Client) GetPractitionerAppointmentTypes(ctx context.Context, practitionerID ids.PractitionerID) ([]Service, error) {
	var out []Service
	path := fmt.Sprintf("/practitioners/%s/appointment_types", url.PathEscape(string(practitionerID)))
	err := c.paginate(ctx, path, nil, func(raw json.RawMessage) error {
		var p page[serviceDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, s := range p.Data {
			out = append(out, s.toService())
		}
		return nil
	})
	return out, err
}

// GetPractitionerBusinesses returns the businesses a practitioner is assigned to.
func (c *Client) GetPractitionerBusinesses(ctx context.Context, practitionerID ids.PractitionerID) ([]Business, error) {
	var out []Business
	path := fmt.Sprintf("/practitioners/%s/businesses", url.PathEscape(string(practitionerID)))
	err := c.paginate(ctx, path, nil, func(raw json.RawMessage) error {
		var p page[businessDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, b := range p.Data {
			out = append(out, b.toBusiness())
		}
		return nil
	})
	return out, err
}

// GetAvailableTimes fetches the slot starts for one (business, practitioner,
// appointment type) triple across a date-only span of at most 7 days.
func (c *Client) GetAvailableTimes(ctx context.Context, req AvailableTimesRequest) ([]time.Time, error) {
	if req.To.Sub(req.From) > maxAvailabilitySpan {
		return nil, fmt.Errorf("pmsclient: %w: span exceeds 7 days", ErrInvalidTimeFrame)
	}
	path := fmt.Sprintf("/businesses/%s/practitioners/%s/appointment_types/%s/available_times",
		url.PathEscape(string(req.BusinessID)),
		url.PathEscape(string(req.PractitionerID)),
		url.PathEscape(string(req.ServiceID)),
	)
	query := url.Values{
		"from": {req.From.Format("2006-01-02")},
		"to":   {req.To.Format("2006-01-02")},
	}

	var slots []time.Time
	err := c.paginate(ctx, path, query, func(raw json.RawMessage) error {
		var p page[availableTimeDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, a := range p.Data {
			t, err := parseUTC(a.StartTime)
			if err != nil {
				continue
			}
			slots = append(slots, t)
		}
		return nil
	})
	return slots, err
}

// SearchPatients looks a patient up by phone number.
func (c *Client) SearchPatients(ctx context.Context, phone string) ([]Patient, error) {
	var out []Patient
	err := c.paginate(ctx, "/patients", url.Values{"search": {phone}}, func(raw json.RawMessage) error {
		var p page[patientDTO]
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		for _, pt := range p.Data {
			out = append(out, pt.toPatient())
		}
		return nil
	})
	return out, err
}

// CreatePatient registers a new patient with the PMS.
func (c *Client) CreatePatient(ctx context.Context, first, last, phone, email string) (Patient, error) {
	body := patientDTO{First: first, Last: last, Phone: phone, Email: email}
	raw, err := c.doJSON(ctx, http.MethodPost, "/patients", nil, body)
	if err != nil {
		return Patient{}, err
	}
	var dto patientDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return Patient{}, fmt.Errorf("pmsclient: decode created patient: %w", err)
	}
	return dto.toPatient(), nil
}

// CreateAppointment books an appointment. The PMS create is not idempotent,
// so this call is never retried by the client itself — retries, if any,
// are the caller's decision and must be based on an authoritative recheck.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (Appointment, error) {
	body := createAppointmentDTO{
		BusinessID:     string(req.BusinessID),
		PractitionerID: string(req.PractitionerID),
		ServiceID:      string(req.ServiceID),
		PatientID:      string(req.PatientID),
		StartTime:      req.StartUTC.UTC().Format(time.RFC3339),
		EndTime:        req.EndUTC.UTC().Format(time.RFC3339),
	}
	raw, err := c.doJSONNoRetry(ctx, http.MethodPost, "/appointments", nil, body)
	if err != nil {
		return Appointment{}, err
	}
	var dto appointmentDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return Appointment{}, fmt.Errorf("pmsclient: decode created appointment: %w", err)
	}
	start, _ := parseUTC(dto.StartTime)
	end, _ := parseUTC(dto.EndTime)
	return Appointment{ID: dto.ID, StartUTC: start, EndUTC: end, Status: dto.Status}, nil
}

// DeleteAppointment cancels an appointment. A 404 is treated by the caller
// (Booking Coordinator) as "already cancelled", per the idempotent-cancel
// contract — the client itself still surfaces ErrNotFound so the caller can
// make that decision explicitly.
func (c *Client) DeleteAppointment(ctx context.Context, appointmentID string) error {
	path := fmt.Sprintf("/appointments/%s", url.PathEscape(appointmentID))
	_, err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func parseUTC(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("pmsclient: malformed timestamp %q", s)
}

// paginate walks link-traversal pages until the PMS reports no further page.
func (c *Client) paginate(ctx context.Context, path string, query url.Values, consume func(json.RawMessage) error) error {
	next := c.buildURL(path, query)
	for next != "" {
		raw, nextLink, err := c.getPage(ctx, next)
		if err != nil {
			return err
		}
		if err := consume(raw); err != nil {
			return fmt.Errorf("pmsclient: decode page: %w", err)
		}
		next = nextLink
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, fullURL string) (json.RawMessage, string, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, fullURL, nil, true)
	if err != nil {
		return nil, "", err
	}
	var envelope struct {
		Next string `json:"next"`
	}
	_ = json.Unmarshal(raw, &envelope)
	return raw, envelope.Next, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	return c.doRaw(ctx, method, c.buildURL(path, query), body, true)
}

func (c *Client) doJSONNoRetry(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	return c.doRaw(ctx, method, c.buildURL(path, query), body, false)
}

// doRaw performs the NEW -> SENT -> {OK | 4xx | 429 | 5xx | NET_ERR} state
// machine: 4xx classifies to a terminal typed error; 429/5xx/network errors
// back off exponentially with jitter and retry up to maxRetries when
// retryable is true, otherwise they classify immediately.
func (c *Client) doRaw(ctx context.Context, method, fullURL string, body any, retryable bool) (json.RawMessage, error) {
	var bodyBytes []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("pmsclient: marshal request body: %w", err)
		}
		bodyBytes = encoded
	}

	attempts := 1
	if retryable {
		attempts = c.maxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("pmsclient: acquire concurrency slot: %w", err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			c.sem.Release(1)
			return nil, fmt.Errorf("pmsclient: rate limiter wait: %w", err)
		}

		raw, status, retryAfter, err := c.send(ctx, method, fullURL, bodyBytes)
		c.sem.Release(1)

		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
			if !retryable {
				return nil, lastErr
			}
			continue
		}

		if status == http.StatusOK || status == http.StatusCreated || status == http.StatusNoContent {
			return raw, nil
		}

		classified := classifyStatus(status, raw)
		lastErr = fmt.Errorf("pmsclient: status %d: %w", status, classified)

		retriableStatus := status == http.StatusTooManyRequests || status >= 500
		if !retryable || !retriableStatus {
			return nil, lastErr
		}
		if retryAfter > 0 {
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := defaultBackoffFloor * time.Duration(1<<uint(attempt-1))
	if backoff > c.backoffCeiling {
		backoff = c.backoffCeiling
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
	return sleepCtx(ctx, jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) send(ctx context.Context, method, fullURL string, body []byte) (raw json.RawMessage, status int, retryAfter time.Duration, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("pmsclient: build request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("pmsclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("pmsclient: read response: %w", err)
	}

	retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return respBody, resp.StatusCode, retryAfter, nil
}

func parseRetryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		return time.Until(when)
	}
	return 0
}
