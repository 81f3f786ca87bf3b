package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
)

type fakeStore struct {
	mu           sync.Mutex
	patients     map[string]ids.PatientID
	appointments map[ids.AppointmentID]Appointment
	failedAttempts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{patients: map[string]ids.PatientID{}, appointments: map[ids.AppointmentID]Appointment{}}
}

func (f *fakeStore) FindPatientByPhone(ctx context.Context, clinicID ids.ClinicID, normalizedPhone string) (ids.PatientID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.patients[normalizedPhone]
	return id, ok, nil
}

func (f *fakeStore) SaveAppointment(ctx context.Context, appt Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appointments[appt.ID] = appt
	return nil
}

func (f *fakeStore) UpdateAppointmentStatus(ctx context.Context, appointmentID ids.AppointmentID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[appointmentID]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = status
	f.appointments[appointmentID] = appt
	return nil
}

func (f *fakeStore) FindAppointment(ctx context.Context, req CancelRequest) (Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.AppointmentID != "" {
		if appt, ok := f.appointments[req.AppointmentID]; ok {
			return appt, nil
		}
	}
	return Appointment{}, ErrAppointmentNotFound
}

func (f *fakeStore) RecordFailedAttempt(ctx context.Context, clinicID ids.ClinicID, practitionerID ids.PractitionerID, businessID ids.BusinessID, startUTC time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedAttempts++
	return nil
}

type fakePMSClient struct {
	slots           []time.Time
	createErr       error
	createdID       string
	deleteErr       error
	patientsFound   []pmsclient.Patient
}

func (f *fakePMSClient) SearchPatients(ctx context.Context, phone string) ([]pmsclient.Patient, error) {
	return f.patientsFound, nil
}

func (f *fakePMSClient) CreatePatient(ctx context.Context, first, last, phone, email string) (pmsclient.Patient, error) {
	return pmsclient.Patient{ID: "new-patient", First: first, Last: last}, nil
}

func (f *fakePMSClient) GetAvailableTimes(ctx context.Context, req pmsclient.AvailableTimesRequest) ([]time.Time, error) {
	return f.slots, nil
}

func (f *fakePMSClient) CreateAppointment(ctx context.Context, req pmsclient.CreateAppointmentRequest) (pmsclient.Appointment, error) {
	if f.createErr != nil {
		return pmsclient.Appointment{}, f.createErr
	}
	id := f.createdID
	if id == "" {
		id = "pms-appt-1"
	}
	return pmsclient.Appointment{ID: id, StartUTC: req.StartUTC, EndUTC: req.EndUTC, Status: "booked"}, nil
}

func (f *fakePMSClient) DeleteAppointment(ctx context.Context, appointmentID string) error {
	return f.deleteErr
}

type fakeFactory struct {
	client *fakePMSClient
}

func (f fakeFactory) ForClinic(ctx context.Context, clinicID ids.ClinicID) (pmsClient, error) {
	return f.client, nil
}

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestCoordinator_Create_HappyPath(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC).Add(10 * time.Hour)
	store := newFakeStore()
	client := &fakePMSClient{slots: []time.Time{start}}
	coordinator := New(store, fakeFactory{client: client}, nil, newTestLocker(t), nil)

	appt, err := coordinator.Create(context.Background(), CreateRequest{
		ClinicID:        "clinic-1",
		PractitionerID:  "prac-1",
		BusinessID:      "biz-1",
		ServiceID:       "svc-1",
		DurationMinutes: 30,
		CallerPhone:     "+61400000000",
		PatientFirst:    "Test",
		PatientLast:     "Patient",
		StartUTC:        start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.ID == "" {
		t.Fatal("expected a non-empty appointment id")
	}
	if appt.Status != "booked" {
		t.Fatalf("expected status booked, got %s", appt.Status)
	}
}

func TestCoordinator_Create_SlotTakenOnPMSConflict(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC).Add(10 * time.Hour)
	store := newFakeStore()
	client := &fakePMSClient{slots: []time.Time{start}, createErr: pmsclient.ErrSlotTaken}
	coordinator := New(store, fakeFactory{client: client}, nil, newTestLocker(t), nil)

	_, err := coordinator.Create(context.Background(), CreateRequest{
		ClinicID:       "clinic-1",
		PractitionerID: "prac-1",
		BusinessID:     "biz-1",
		ServiceID:      "svc-1",
		CallerPhone:    "+61400000000",
		PatientFirst:   "Test",
		PatientLast:    "Patient",
		StartUTC:       start,
	})
	if err != ErrSlotTaken {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if store.failedAttempts != 1 {
		t.Fatalf("expected a recorded failed attempt, got %d", store.failedAttempts)
	}
}

func TestCoordinator_Create_ConcurrentRaceOnlyOneWins(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC).Add(10 * time.Hour)
	mr := miniredis.RunT(t)
	locker := NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	store1 := newFakeStore()
	store2 := newFakeStore()
	client1 := &fakePMSClient{slots: []time.Time{start}, createdID: "appt-a"}
	client2 := &fakePMSClient{slots: []time.Time{start}, createdID: "appt-b"}
	coord1 := New(store1, fakeFactory{client: client1}, nil, locker, nil)
	coord2 := New(store2, fakeFactory{client: client2}, nil, locker, nil)

	req := CreateRequest{
		ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", ServiceID: "svc-1",
		CallerPhone: "+61400000000", PatientFirst: "Test", PatientLast: "Patient", StartUTC: start,
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = coord1.Create(context.Background(), req)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = coord2.Create(context.Background(), req)
	}()
	wg.Wait()

	successes := 0
	slotTaken := 0
	for _, err := range results {
		switch err {
		case nil:
			successes++
		case ErrSlotTaken:
			slotTaken++
		}
	}
	if successes != 1 || slotTaken != 1 {
		t.Fatalf("expected exactly one success and one slot_taken, got successes=%d slot_taken=%d (errs=%v)", successes, slotTaken, results)
	}
}

func TestCoordinator_Cancel_IdempotentOnSecondCall(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC).Add(10 * time.Hour)
	store := newFakeStore()
	store.appointments["appt-1"] = Appointment{ID: "appt-1", Status: "booked", StartUTC: start, PMSAppointmentID: "pms-1"}
	client := &fakePMSClient{}
	coordinator := New(store, fakeFactory{client: client}, nil, newTestLocker(t), nil)

	if err := coordinator.Cancel(context.Background(), CancelRequest{ClinicID: "clinic-1", AppointmentID: "appt-1"}); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := coordinator.Cancel(context.Background(), CancelRequest{ClinicID: "clinic-1", AppointmentID: "appt-1"}); err != nil {
		t.Fatalf("second cancel should be a no-op success: %v", err)
	}
}

func TestCoordinator_Reschedule_FailureLeavesOldAppointmentIntact(t *testing.T) {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC).Add(10 * time.Hour)
	newStart := start.Add(time.Hour)

	store := newFakeStore()
	store.appointments["appt-1"] = Appointment{ID: "appt-1", Status: "booked", StartUTC: start, PMSAppointmentID: "pms-1"}
	client := &fakePMSClient{slots: []time.Time{newStart}, createErr: pmsclient.ErrSlotTaken}
	coordinator := New(store, fakeFactory{client: client}, nil, newTestLocker(t), nil)

	_, err := coordinator.Reschedule(context.Background(), RescheduleRequest{
		Old: CancelRequest{ClinicID: "clinic-1", AppointmentID: "appt-1"},
		New: CreateRequest{
			ClinicID: "clinic-1", PractitionerID: "prac-1", BusinessID: "biz-1", ServiceID: "svc-1",
			CallerPhone: "+61400000000", PatientFirst: "Test", PatientLast: "Patient", StartUTC: newStart,
		},
	})
	if err != ErrSlotTaken {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if store.appointments["appt-1"].Status != "booked" {
		t.Fatalf("expected old appointment to remain booked, got %s", store.appointments["appt-1"].Status)
	}
}
