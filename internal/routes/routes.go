package routes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/repository"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/metrics"
)

// Processor handles one registration envelope.
type Processor interface {
	Process(ctx context.Context, envelope *models.RegistrationEnvelope) (*models.RegistrationResult, error)
}

// StatusReader looks up recorded registration outcomes.
type StatusReader interface {
	Get(ctx context.Context, requestID string) (*repository.RegistrationStatus, error)
}

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// NewRouter wires health, metrics, the synchronous registration endpoint and
// the status lookup.
func NewRouter(processor Processor, statuses StatusReader, metrics *metrics.Metrics, logger *slog.Logger, started time.Time) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Success: true,
			Message: "push registrar healthy",
			Meta: map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /v1/push/registrations", registerHandler(processor, logger))
	mux.HandleFunc("GET /v1/push/registrations/{id}", statusHandler(statuses, logger))
	return mux
}

func statusHandler(statuses StatusReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rec, err := statuses.Get(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, response{
				Message: "registration not found",
				Error:   err.Error(),
			})
			return
		}
		if err != nil {
			logger.Error("registration status lookup failed", slog.String("request_id", id), slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, response{
				Message: "status lookup failed",
				Error:   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, response{
			Success: true,
			Message: "registration status",
			Data:    rec,
		})
	}
}

func registerHandler(processor Processor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var envelope models.RegistrationEnvelope
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&envelope); err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Message: "invalid request body",
				Error:   err.Error(),
			})
			return
		}
		if envelope.CreatedAt.IsZero() {
			envelope.CreatedAt = time.Now().UTC()
		}

		result, err := processor.Process(r.Context(), &envelope)
		if err != nil {
			status := http.StatusBadGateway
			var verr *endpoint.ValidationError
			if errors.As(err, &verr) {
				status = http.StatusUnprocessableEntity
			}
			logger.Warn("registration request failed", slog.String("request_id", envelope.RequestID), slog.Any("error", err))
			writeJSON(w, status, response{
				Message: "registration failed",
				Data:    result,
				Error:   err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, response{
			Success: true,
			Message: "channels registered",
			Data:    result,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
