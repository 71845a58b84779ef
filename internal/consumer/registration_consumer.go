package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/transport"
)

// AttemptsHeader counts how many times a registration was handled.
const AttemptsHeader = "x-registration-attempts"

// Processor handles one registration envelope.
type Processor interface {
	Process(ctx context.Context, envelope *models.RegistrationEnvelope) (*models.RegistrationResult, error)
}

// Republisher puts a message back on the queue with new headers.
type Republisher interface {
	Republish(msg amqp.Delivery, headers amqp.Table) error
}

type RegistrationConsumer struct {
	base          *BaseConsumer
	republisher   Republisher
	processor     Processor
	logger        *slog.Logger
	maxDeliveries int
}

func NewRegistrationConsumer(base *BaseConsumer, processor Processor, logger *slog.Logger, maxDeliveries int) *RegistrationConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &RegistrationConsumer{
		base:          base,
		republisher:   base,
		processor:     processor,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (c *RegistrationConsumer) Start(ctx context.Context) error {
	return c.base.Start(ctx, c.handleDelivery)
}

// handleDelivery acks on success. Permanent failures and messages that used
// up their deliveries are dead-lettered; anything else is republished with an
// incremented attempts header, since a plain requeue carries no count.
func (c *RegistrationConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var envelope models.RegistrationEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		c.logger.Error("failed to unmarshal envelope", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	_, err := c.processor.Process(ctx, &envelope)
	if err == nil {
		return msg.Ack(false)
	}

	log := c.logger.With(slog.String("request_id", envelope.RequestID), slog.Any("error", err))
	attempts := deliveryAttempts(&msg) + 1
	if permanent(err) || attempts >= c.maxDeliveries {
		log.Error("registration failed, message dead-lettered", slog.Int("attempts", attempts))
		_ = msg.Nack(false, false)
		return err
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[AttemptsHeader] = int32(attempts)
	if pubErr := c.republisher.Republish(msg, headers); pubErr != nil {
		log.Warn("republish failed, message requeued", slog.Any("publish_error", pubErr))
		_ = msg.Nack(false, true)
		return err
	}

	log.Warn("registration failed, message republished", slog.Int("attempts", attempts))
	_ = msg.Ack(false)
	return err
}

// permanent reports failures that another delivery cannot fix.
func permanent(err error) bool {
	var verr *endpoint.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	if errors.Is(err, transport.ErrMalformedResponse) {
		return true
	}
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Temporary()
	}
	return false
}

// deliveryAttempts returns how many times msg has already been handled.
func deliveryAttempts(msg *amqp.Delivery) int {
	if n, ok := headerInt(msg.Headers[AttemptsHeader]); ok {
		return n
	}
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := headerInt(table["count"]); ok {
					return count
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}

func headerInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
