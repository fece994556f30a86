package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelinkhq/carelink/libs/eventx"
	"github.com/carelinkhq/carelink/services/appointment-service/internal/storage"
)

type Repository interface {
	Create(ctx context.Context, a storage.Appointment) (storage.Appointment, error)
	GetByID(ctx context.Context, id string) (storage.Appointment, error)
	Cancel(ctx context.Context, id string) (storage.Appointment, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt eventx.DomainEvent) (eventx.Envelope, error)
}

type Handler struct {
	repo      Repository
	publisher EventPublisher
	logger    *slog.Logger
}

func New(repo Repository, publisher EventPublisher, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, publisher: publisher, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/appointments", h.Create)
	mux.HandleFunc("GET /api/appointments/{id}", h.Get)
	mux.HandleFunc("POST /api/appointments/{id}/cancel", h.Cancel)
}

type createAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.PatientID == "" || req.DoctorID == "" {
		http.Error(w, "patient_id and doctor_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil || !end.After(start) {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	appt, err := h.repo.Create(r.Context(), storage.Appointment{
		ID:        uuid.NewString(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	// The write is committed; a publish failure is reported but never rolls
	// it back. The event is lost in that case (no outbox), which callers see
	// in the response.
	published := h.publish(r.Context(), eventx.AppointmentCreated, appt)

	writeJSON(w, http.StatusCreated, map[string]any{
		"appointment_id":  appt.ID,
		"status":          appt.Status,
		"event_published": published,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	body := map[string]any{
		"appointment_id": appt.ID,
		"patient_id":     appt.PatientID,
		"doctor_id":      appt.DoctorID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"reason":         appt.Reason,
		"status":         appt.Status,
		"created_at":     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		body["cancelled_at"] = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.repo.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrAlreadyCancelled):
			http.Error(w, "appointment already cancelled", http.StatusConflict)
		default:
			http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		}
		return
	}

	published := h.publish(r.Context(), eventx.AppointmentCancelled, appt)

	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id":  appt.ID,
		"status":          appt.Status,
		"event_published": published,
	})
}

func (h *Handler) publish(ctx context.Context, evtType eventx.EventType, appt storage.Appointment) bool {
	env, err := h.publisher.PublishEvent(ctx, eventx.DomainEvent{
		Type:        evtType,
		AggregateID: appt.ID,
		Payload: map[string]any{
			"appointment_id": appt.ID,
			"patient_id":     appt.PatientID,
			"doctor_id":      appt.DoctorID,
			"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
			"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
			"status":         appt.Status,
		},
	})
	if err != nil {
		h.logger.Error("appointment event publish failed", "appointment_id", appt.ID, "err", err)
		return false
	}
	h.logger.Info("appointment event published",
		"appointment_id", appt.ID,
		"routing_key", env.RoutingKey,
		"message_id", env.MessageID,
	)
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
