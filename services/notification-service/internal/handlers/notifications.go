package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
	"github.com/carelinkhq/carelink/services/notification-service/internal/storage"
)

// Dispatcher is the dispatch engine surface the HTTP layer needs.
type Dispatcher interface {
	SendSingle(ctx context.Context, channelType string, msg channel.Message) bool
	SendMulti(ctx context.Context, channelTypes []string, msg channel.Message) map[string]bool
}

// Records is the read/mark surface of the notification log.
type Records interface {
	GetByID(ctx context.Context, id int64) (storage.Record, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]storage.Record, error)
	MarkRead(ctx context.Context, id int64) error
	CountUnread(ctx context.Context) (int64, error)
}

type Handler struct {
	dispatcher Dispatcher
	records    Records
	logger     *slog.Logger
}

func New(dispatcher Dispatcher, records Records, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, records: records, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notifications/send", h.Send)
	mux.HandleFunc("POST /api/notifications/send-multi", h.SendMulti)
	mux.HandleFunc("GET /api/notifications/unread-count", h.UnreadCount)
	mux.HandleFunc("GET /api/notifications/appointment/{id}", h.ListByAppointment)
	mux.HandleFunc("GET /api/notifications/{id}", h.GetByID)
	mux.HandleFunc("POST /api/notifications/{id}/read", h.MarkRead)
}

// SendRequest is the notification request surface shared by the HTTP
// endpoints and the broker consumer.
type SendRequest struct {
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Content      string         `json:"content"`
	ChannelType  string         `json:"channel_type,omitempty"`
	ChannelTypes []string       `json:"channel_types,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (req SendRequest) Message() channel.Message {
	return channel.Message{
		Recipient: strings.TrimSpace(req.Recipient),
		Subject:   strings.TrimSpace(req.Subject),
		Content:   strings.TrimSpace(req.Content),
		Metadata:  req.Metadata,
	}
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	msg := req.Message()
	if err := msg.Validate(); err != nil {
		http.Error(w, "recipient, subject and content are required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ChannelType) == "" {
		http.Error(w, "channel_type is required", http.StatusBadRequest)
		return
	}

	delivered := h.dispatcher.SendSingle(r.Context(), req.ChannelType, msg)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_type": req.ChannelType,
		"delivered":    delivered,
	})
}

func (h *Handler) SendMulti(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	msg := req.Message()
	if err := msg.Validate(); err != nil {
		http.Error(w, "recipient, subject and content are required", http.StatusBadRequest)
		return
	}
	if len(req.ChannelTypes) == 0 {
		http.Error(w, "channel_types is required", http.StatusBadRequest)
		return
	}

	results := h.dispatcher.SendMulti(r.Context(), req.ChannelTypes, msg)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	rec, err := h.records.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recordItem(rec))
}

func (h *Handler) ListByAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID := strings.TrimSpace(r.PathValue("id"))
	if appointmentID == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}
	records, err := h.records.ListByAppointment(r.Context(), appointmentID)
	if err != nil {
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, recordItem(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": appointmentID,
		"notifications":  items,
	})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.records.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to mark notification read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.records.CountUnread(r.Context())
	if err != nil {
		http.Error(w, "failed to count unread notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": n})
}

func recordItem(rec storage.Record) map[string]any {
	item := map[string]any{
		"id":             rec.ID,
		"appointment_id": rec.AppointmentID,
		"message":        rec.Message,
		"channel":        rec.Channel,
		"recipient":      rec.Recipient,
		"status":         rec.Status,
		"is_read":        rec.IsRead,
		"created_at":     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.FailureReason != "" {
		item["failure_reason"] = rec.FailureReason
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
