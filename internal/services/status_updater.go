package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/repository"
)

// StatusStore persists registration outcomes.
type StatusStore interface {
	UpdateStatus(ctx context.Context, rec repository.RegistrationStatus) error
}

// StatusUpdater records status transitions. Store failures are logged, never
// returned, so bookkeeping cannot fail a registration.
type StatusUpdater struct {
	store  StatusStore
	logger *slog.Logger
}

func NewStatusUpdater(store StatusStore, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		store:  store,
		logger: logger,
	}
}

func (s *StatusUpdater) MarkProcessing(ctx context.Context, env *models.RegistrationEnvelope) {
	s.update(ctx, env, models.StatusProcessing, "")
}

func (s *StatusUpdater) MarkRegistered(ctx context.Context, env *models.RegistrationEnvelope) {
	s.update(ctx, env, models.StatusRegistered, "")
}

func (s *StatusUpdater) MarkSkipped(ctx context.Context, env *models.RegistrationEnvelope, detail string) {
	s.update(ctx, env, models.StatusSkipped, detail)
}

func (s *StatusUpdater) MarkFailed(ctx context.Context, env *models.RegistrationEnvelope, detail string) {
	s.update(ctx, env, models.StatusFailed, detail)
}

func (s *StatusUpdater) update(ctx context.Context, env *models.RegistrationEnvelope, status, detail string) {
	rec := repository.RegistrationStatus{
		RequestID: env.RequestID,
		DeviceID:  env.DeviceID,
		PushType:  strings.ToLower(env.PushType),
		Channels:  strings.Join(env.Channels, ","),
		Status:    status,
		Detail:    detail,
	}
	if err := s.store.UpdateStatus(ctx, rec); err != nil {
		s.logger.Error("failed to update registration status",
			slog.String("request_id", env.RequestID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}
