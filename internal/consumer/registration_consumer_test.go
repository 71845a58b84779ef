package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/transport"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/logger"
)

type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
	rejected bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	a.rejected = true
	return nil
}

type stubProcessor struct {
	err  error
	seen *models.RegistrationEnvelope
}

func (s *stubProcessor) Process(_ context.Context, env *models.RegistrationEnvelope) (*models.RegistrationResult, error) {
	s.seen = env
	if s.err != nil {
		return &models.RegistrationResult{RequestID: env.RequestID, Status: models.StatusFailed}, s.err
	}
	return &models.RegistrationResult{RequestID: env.RequestID, Status: models.StatusRegistered}, nil
}

type recordingRepublisher struct {
	published []amqp.Table
	err       error
}

func (r *recordingRepublisher) Republish(_ amqp.Delivery, headers amqp.Table) error {
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, headers)
	return nil
}

func newTestConsumer(p Processor) (*RegistrationConsumer, *recordingRepublisher) {
	base := NewBaseConsumer(nil, Topology{Queue: "push.registrations"}, 0, 0, logger.Discard())
	c := NewRegistrationConsumer(base, p, logger.Discard(), 3)
	rep := &recordingRepublisher{}
	c.republisher = rep
	return c, rep
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

const validBody = `{"request_id":"req-1","device_id":"dev1","push_type":"gcm","channels":["a","b"]}`

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	ack := &ackRecorder{}
	p := &stubProcessor{}
	c, rep := newTestConsumer(p)

	require.NoError(t, c.handleDelivery(context.Background(), delivery(ack, validBody)))
	assert.True(t, ack.acked)
	assert.Empty(t, rep.published)
	require.NotNil(t, p.seen)
	assert.Equal(t, []string{"a", "b"}, p.seen.Channels)
}

func TestHandleDeliveryRejectsMalformedJSON(t *testing.T) {
	ack := &ackRecorder{}
	c, _ := newTestConsumer(&stubProcessor{})

	err := c.handleDelivery(context.Background(), delivery(ack, "{"))
	assert.Error(t, err)
	assert.True(t, ack.rejected)
	assert.False(t, ack.acked)
}

func TestHandleDeliveryRepublishesTransientFailure(t *testing.T) {
	ack := &ackRecorder{}
	c, rep := newTestConsumer(&stubProcessor{err: errors.New("service unavailable")})
	msg := delivery(ack, validBody)
	msg.Headers = amqp.Table{"trace": "abc"}

	err := c.handleDelivery(context.Background(), msg)
	assert.Error(t, err)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Len(t, rep.published, 1)
	assert.Equal(t, int32(1), rep.published[0][AttemptsHeader])
	assert.Equal(t, "abc", rep.published[0]["trace"])
}

func TestHandleDeliveryRequeuesWhenRepublishFails(t *testing.T) {
	ack := &ackRecorder{}
	c, rep := newTestConsumer(&stubProcessor{err: errors.New("service unavailable")})
	rep.err = errors.New("channel closed")

	_ = c.handleDelivery(context.Background(), delivery(ack, validBody))
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestHandleDeliveryDeadLettersAfterMaxDeliveries(t *testing.T) {
	c, rep := newTestConsumer(&stubProcessor{err: errors.New("service unavailable")})

	// Feed each republished copy back in, the way the broker would.
	headers := amqp.Table(nil)
	var last *ackRecorder
	for i := 0; i < 10; i++ {
		last = &ackRecorder{}
		msg := delivery(last, validBody)
		msg.Headers = headers
		_ = c.handleDelivery(context.Background(), msg)
		if last.nacked {
			break
		}
		headers = rep.published[len(rep.published)-1]
	}
	assert.True(t, last.nacked)
	assert.False(t, last.requeued)
	assert.Len(t, rep.published, 2)
}

func TestHandleDeliveryDeadLettersPermanentFailures(t *testing.T) {
	cases := map[string]error{
		"validation":      endpoint.NewValidationError("topic", "APNS2 topic is missing"),
		"client status":   fmt.Errorf("AddChannelsToPush: %w", &transport.StatusError{StatusCode: http.StatusBadRequest}),
		"malformed reply": fmt.Errorf("AddChannelsToPush: %w", transport.ErrMalformedResponse),
	}
	for name, procErr := range cases {
		t.Run(name, func(t *testing.T) {
			ack := &ackRecorder{}
			c, rep := newTestConsumer(&stubProcessor{err: procErr})
			msg := delivery(ack, validBody)
			msg.Redelivered = true

			err := c.handleDelivery(context.Background(), msg)
			assert.Error(t, err)
			assert.True(t, ack.nacked)
			assert.False(t, ack.requeued)
			assert.Empty(t, rep.published)
		})
	}
}

func TestPermanent(t *testing.T) {
	assert.False(t, permanent(errors.New("connection reset")))
	assert.False(t, permanent(&transport.StatusError{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, permanent(&transport.StatusError{StatusCode: http.StatusForbidden}))
}

func TestDeliveryAttempts(t *testing.T) {
	assert.Equal(t, 0, deliveryAttempts(&amqp.Delivery{}))
	assert.Equal(t, 2, deliveryAttempts(&amqp.Delivery{
		Redelivered: true,
		Headers:     amqp.Table{AttemptsHeader: int32(2)},
	}))
	assert.Equal(t, 1, deliveryAttempts(&amqp.Delivery{Redelivered: true}))
	assert.Equal(t, 4, deliveryAttempts(&amqp.Delivery{
		Headers: amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(4)}}},
	}))
}

func TestDeadLetterArgs(t *testing.T) {
	assert.Empty(t, deadLetterArgs(""))
	args := deadLetterArgs("push.registrations.failed")
	assert.Equal(t, "", args["x-dead-letter-exchange"])
	assert.Equal(t, "push.registrations.failed", args["x-dead-letter-routing-key"])
}

func TestRepublishWithoutChannel(t *testing.T) {
	c := NewBaseConsumer(nil, Topology{Queue: "q"}, 0, 0, logger.Discard())
	assert.ErrorIs(t, c.Republish(amqp.Delivery{}, nil), errChannelClosed)
}

func TestNewBaseConsumerDefaults(t *testing.T) {
	c := NewBaseConsumer(nil, Topology{Queue: "q"}, 0, 0, logger.Discard())
	assert.Equal(t, 50, c.prefetch)
	assert.Equal(t, 5, c.workerCount)
	assert.Equal(t, "notifications.direct", c.topology.Exchange)
	assert.Equal(t, "q", c.topology.RoutingKey)
}
