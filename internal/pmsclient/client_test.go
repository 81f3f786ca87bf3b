package pmsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

type staticCredentials struct{ creds Credentials }

func (s staticCredentials) GetCredentials(ctx context.Context, clinicID ids.ClinicID) (Credentials, error) {
	return s.creds, nil
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	factory := NewFactory(FactoryConfig{
		HostTemplate: server.URL + "/%s",
		Credentials: staticCredentials{creds: Credentials{
			ClinicID: "clinic-1",
			Shard:    "shard1",
			Username: "user",
			APIKey:   "key",
		}},
		MaxRetries:     2,
		BackoffCeiling: 10 * time.Millisecond,
		RatePerSecond:  1000,
	})
	client, err := factory.ForClinic(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("ForClinic: %v", err)
	}
	return client
}

func TestClient_GetBusinesses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/shard1/businesses" {
			t.Errorf("expected path /shard1/businesses, got %s", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "key" {
			t.Errorf("expected basic auth user/key, got %s/%s", user, pass)
		}
		json.NewEncoder(w).Encode(page[businessDTO]{
			Data: []businessDTO{{ID: "b1", Name: "Main Street", IsPrimary: true}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	businesses, err := client.GetBusinesses(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(businesses) != 1 || businesses[0].ID != "b1" || !businesses[0].IsPrimary {
		t.Fatalf("unexpected businesses: %+v", businesses)
	}
}

func TestClient_GetBusinesses_Pagination(t *testing.T) {
	calls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(page[businessDTO]{
				Data: []businessDTO{{ID: "b1", Name: "First"}},
				Next: server.URL + "/shard1/businesses?cursor=2",
			})
			return
		}
		json.NewEncoder(w).Encode(page[businessDTO]{
			Data: []businessDTO{{ID: "b2", Name: "Second"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	businesses, err := client.GetBusinesses(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(businesses) != 2 {
		t.Fatalf("expected 2 businesses across pages, got %d", len(businesses))
	}
	if calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
}

func TestClient_GetAvailableTimes_RejectsSpanOverSevenDays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called for an invalid span")
	}))
	defer server.Close()

	client := newTestClient(t, server)
	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(10 * 24 * time.Hour)

	_, err := client.GetAvailableTimes(context.Background(), AvailableTimesRequest{
		BusinessID:     "b1",
		PractitionerID: "p1",
		ServiceID:      "s1",
		From:           from,
		To:             to,
	})
	if err == nil {
		t.Fatal("expected error for span exceeding 7 days")
	}
}

func TestClient_GetAvailableTimes_ParsesSlots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(page[availableTimeDTO]{
			Data: []availableTimeDTO{
				{StartTime: "2025-07-16T00:00:00Z"},
				{StartTime: "2025-07-16T00:30:00Z"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	from := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	slots, err := client.GetAvailableTimes(context.Background(), AvailableTimesRequest{
		BusinessID:     "b1",
		PractitionerID: "p1",
		ServiceID:      "s1",
		From:           from,
		To:             to,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
}

func TestClient_CreateAppointment_NotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"db unavailable"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreateAppointment(context.Background(), CreateAppointmentRequest{
		BusinessID:     "b1",
		PractitionerID: "p1",
		ServiceID:      "s1",
		PatientID:      "pt1",
		StartUTC:       time.Now().UTC(),
		EndUTC:         time.Now().UTC().Add(30 * time.Minute),
	})
	if err == nil {
		t.Fatal("expected error from upstream 500")
	}
	if calls != 1 {
		t.Fatalf("create appointment must not be retried by the client, got %d calls", calls)
	}
}

func TestClient_DeleteAppointment_NotFoundClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.DeleteAppointment(context.Background(), "appt-1")
	if err == nil {
		t.Fatal("expected not found error")
	}
}

func TestClient_RetriesOn429ThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(page[businessDTO]{Data: []businessDTO{{ID: "b1"}}})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	businesses, err := client.GetBusinesses(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if len(businesses) != 1 {
		t.Fatalf("expected 1 business after retry, got %d", len(businesses))
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", calls)
	}
}

func TestClient_ClassifiesUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.GetPractitioners(context.Background())
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
}
