package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/dispatcher"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/push"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/metrics"
)

// RegistrationCache remembers fingerprints of completed registrations.
type RegistrationCache interface {
	IsRegistered(ctx context.Context, fingerprint string) (bool, error)
	MarkRegistered(ctx context.Context, fingerprint string) error
}

type RegistrationProcessor struct {
	pubnub        config.PubNub
	dispatcher    *dispatcher.Dispatcher
	statusUpdater *StatusUpdater
	cache         RegistrationCache
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewRegistrationProcessor wires the processor. cache may be nil.
func NewRegistrationProcessor(
	pubnub config.PubNub,
	d *dispatcher.Dispatcher,
	statusUpdater *StatusUpdater,
	cache RegistrationCache,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *RegistrationProcessor {
	return &RegistrationProcessor{
		pubnub:        pubnub,
		dispatcher:    d,
		statusUpdater: statusUpdater,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
	}
}

// Process registers envelope.Channels for envelope.DeviceID and returns the
// recorded outcome. A non-nil error means the registration did not happen.
func (p *RegistrationProcessor) Process(ctx context.Context, envelope *models.RegistrationEnvelope) (*models.RegistrationResult, error) {
	p.metrics.IncConsumed()
	if envelope.RequestID == "" {
		envelope.RequestID = uuid.NewString()
	}
	log := p.logger.With(
		slog.String("request_id", envelope.RequestID),
		slog.String("device_id", envelope.DeviceID),
	)

	pushType, err := push.ParseType(envelope.PushType)
	if err != nil {
		p.metrics.IncRejected()
		p.statusUpdater.MarkFailed(ctx, envelope, err.Error())
		return p.result(envelope, models.StatusFailed, err.Error()), err
	}

	fingerprint := Fingerprint(envelope, pushType)
	if p.cache != nil {
		registered, err := p.cache.IsRegistered(ctx, fingerprint)
		if err != nil {
			log.Warn("registration cache lookup failed", slog.Any("error", err))
		} else if registered {
			p.metrics.IncSkipped()
			p.statusUpdater.MarkSkipped(ctx, envelope, "already registered")
			log.Debug("registration skipped, fingerprint cached")
			return p.result(envelope, models.StatusSkipped, "already registered"), nil
		}
	}

	p.statusUpdater.MarkProcessing(ctx, envelope)

	_, err = push.NewAddChannelsToPush(p.pubnub, p.dispatcher).
		Channels(envelope.Channels...).
		DeviceID(envelope.DeviceID).
		PushType(pushType).
		Topic(envelope.Topic).
		Environment(envelope.Environment).
		Sync(ctx)
	if err != nil {
		// The dispatcher already counted this as rejected or failed.
		p.statusUpdater.MarkFailed(ctx, envelope, err.Error())
		return p.result(envelope, models.StatusFailed, err.Error()), err
	}

	if p.cache != nil {
		if err := p.cache.MarkRegistered(ctx, fingerprint); err != nil {
			log.Warn("failed to cache registration", slog.Any("error", err))
		}
	}
	p.metrics.IncRegistered()
	p.statusUpdater.MarkRegistered(ctx, envelope)
	log.Info("channels registered for push", slog.Int("channels", len(envelope.Channels)))
	return p.result(envelope, models.StatusRegistered, ""), nil
}

func (p *RegistrationProcessor) result(envelope *models.RegistrationEnvelope, status, detail string) *models.RegistrationResult {
	return &models.RegistrationResult{
		RequestID: envelope.RequestID,
		DeviceID:  envelope.DeviceID,
		Status:    status,
		Detail:    detail,
	}
}

// Fingerprint identifies a registration independent of channel order or
// duplicates. FCM and GCM share a fingerprint.
func Fingerprint(envelope *models.RegistrationEnvelope, pushType push.Type) string {
	if pushType == push.TypeFCM {
		pushType = push.TypeGCM
	}
	channels := make([]string, 0, len(envelope.Channels))
	seen := make(map[string]struct{}, len(envelope.Channels))
	for _, item := range envelope.Channels {
		for _, ch := range strings.Split(item, ",") {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			channels = append(channels, ch)
		}
	}
	sort.Strings(channels)

	env := ""
	if pushType == push.TypeAPNS2 {
		env = envelope.Environment
		if env == "" {
			env = push.EnvironmentDevelopment
		}
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		envelope.DeviceID,
		pushType.String(),
		envelope.Topic,
		env,
		strings.Join(channels, ","),
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}
