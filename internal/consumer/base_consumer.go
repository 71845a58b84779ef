package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Topology names the exchange and queues a consumer binds to.
type Topology struct {
	Exchange   string
	Queue      string
	DeadLetter string
	RoutingKey string
}

// BaseConsumer wires RabbitMQ connectivity, queue declaration and worker handling.
type BaseConsumer struct {
	conn        *amqp.Connection
	topology    Topology
	prefetch    int
	workerCount int
	logger      *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

var errChannelClosed = errors.New("consumer: channel not open")

func NewBaseConsumer(conn *amqp.Connection, topology Topology, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	if workerCount <= 0 {
		workerCount = 5
	}
	if topology.Exchange == "" {
		topology.Exchange = "notifications.direct"
	}
	if topology.RoutingKey == "" {
		topology.RoutingKey = topology.Queue
	}
	return &BaseConsumer{
		conn:        conn,
		topology:    topology,
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start consumes until ctx is cancelled, handing each delivery to handler on
// one of the workers. The handler owns ack/nack.
func (c *BaseConsumer) Start(ctx context.Context, handler func(context.Context, amqp.Delivery) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ch = nil
		c.mu.Unlock()
	}()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.topology.Queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consuming registrations",
		slog.String("queue", c.topology.Queue),
		slog.Int("workers", c.workerCount),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, msg); err != nil {
						c.logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
					}
				}
			}
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Republish puts a copy of msg back on the consumer's queue with headers
// replacing the original ones.
func (c *BaseConsumer) Republish(msg amqp.Delivery, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return errChannelClosed
	}
	return c.ch.Publish(c.topology.Exchange, c.topology.RoutingKey, false, false, amqp.Publishing{
		Headers:       headers,
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: msg.CorrelationId,
		MessageId:     msg.MessageId,
		Timestamp:     msg.Timestamp,
		Body:          msg.Body,
	})
}

func (c *BaseConsumer) setupQueue(ch *amqp.Channel) error {
	t := c.topology
	if err := ch.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if t.DeadLetter != "" {
		if _, err := ch.QueueDeclare(t.DeadLetter, true, false, false, false, nil); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, deadLetterArgs(t.DeadLetter)); err != nil {
		return err
	}

	return ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil)
}

func deadLetterArgs(dlq string) amqp.Table {
	args := amqp.Table{}
	if dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq
	}
	return args
}
