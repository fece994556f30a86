package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carelinkhq/carelink/libs/eventx"
	"github.com/carelinkhq/carelink/services/appointment-service/internal/storage"
)

type fakeRepo struct {
	created   []storage.Appointment
	cancelled []string
}

func (f *fakeRepo) Create(_ context.Context, a storage.Appointment) (storage.Appointment, error) {
	a.CreatedAt = time.Now().UTC()
	f.created = append(f.created, a)
	return a, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (storage.Appointment, error) {
	for _, a := range f.created {
		if a.ID == id {
			return a, nil
		}
	}
	return storage.Appointment{}, storage.ErrNotFound
}

func (f *fakeRepo) Cancel(_ context.Context, id string) (storage.Appointment, error) {
	a, err := f.GetByID(context.Background(), id)
	if err != nil {
		return storage.Appointment{}, err
	}
	f.cancelled = append(f.cancelled, id)
	now := time.Now().UTC()
	a.Status = "cancelled"
	a.CancelledAt = &now
	return a, nil
}

type fakePublisher struct {
	events []eventx.DomainEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, evt eventx.DomainEvent) (eventx.Envelope, error) {
	if f.err != nil {
		return eventx.Envelope{}, f.err
	}
	f.events = append(f.events, evt)
	return eventx.Build(evt)
}

func newTestServer(repo *fakeRepo, pub *fakePublisher) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	mux := http.NewServeMux()
	New(repo, pub, logger).Register(mux)
	return httptest.NewServer(mux)
}

func createBody() string {
	return `{
		"patient_id": "pat-1",
		"doctor_id": "doc-9",
		"start_time": "2026-09-01T09:00:00Z",
		"end_time": "2026-09-01T09:30:00Z",
		"reason": "checkup"
	}`
}

func TestCreate_PublishesAppointmentCreated(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	srv := newTestServer(repo, pub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/appointments", "application/json", strings.NewReader(createBody()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var out struct {
		AppointmentID  string `json:"appointment_id"`
		EventPublished bool   `json:"event_published"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.EventPublished {
		t.Fatal("expected event_published=true")
	}
	if len(pub.events) != 1 || pub.events[0].Type != eventx.AppointmentCreated {
		t.Fatalf("published events: %+v", pub.events)
	}
	if pub.events[0].AggregateID != out.AppointmentID {
		t.Fatal("event aggregate id must match the created appointment")
	}
}

func TestCreate_PublishFailureDoesNotRollBackWrite(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{err: errors.New("broker severed")}
	srv := newTestServer(repo, pub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/appointments", "application/json", strings.NewReader(createBody()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d: the committed write must survive a publish failure", resp.StatusCode)
	}

	var out struct {
		EventPublished bool `json:"event_published"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.EventPublished {
		t.Fatal("publish failure must be reported")
	}
	if len(repo.created) != 1 {
		t.Fatalf("appointment rows: %d, want 1", len(repo.created))
	}
}

func TestCancel_PublishesAppointmentCancelled(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	srv := newTestServer(repo, pub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/appointments", "application/json", strings.NewReader(createBody()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	id := repo.created[0].ID

	resp, err = http.Post(srv.URL+"/api/appointments/"+id+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(pub.events) != 2 || pub.events[1].Type != eventx.AppointmentCancelled {
		t.Fatalf("published events: %+v", pub.events)
	}
}

func TestCreate_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(&fakeRepo{}, &fakePublisher{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/appointments", "application/json",
		strings.NewReader(`{"doctor_id":"doc-9"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}
