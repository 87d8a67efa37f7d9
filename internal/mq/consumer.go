package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultHandleTimeout = 10 * time.Second

// MessageHandler applies one message body. A non-nil error dead-letters the message.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer reads device telemetry from a queue bound to the telemetry exchange
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	tag           string
	prefetchCount int
	handleTimeout time.Duration
	logger        *zap.Logger
	handler       MessageHandler

	// closed when the delivery loop exits
	stopped chan struct{}
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection       *Connection
	Queue            string
	DLQQueue         string
	Exchange         string
	RoutingKey       string
	PrefetchCount    int
	HandleTimeout    time.Duration
	Logger           *zap.Logger
	MessageProcessor MessageHandler
}

// NewConsumer declares the topology (exchange, DLQ, queue, binding) and returns a consumer ready to start
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := openChannel(cfg.Connection, cfg.PrefetchCount)
	if err != nil {
		return nil, err
	}

	if err := declareTopicExchange(ch, cfg.Exchange); err != nil {
		ch.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare DLQ %s: %w", cfg.DLQQueue, err)
	}

	if ch, err = declareTelemetryQueue(ch, cfg); err != nil {
		return nil, err
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind %s to %s: %w", cfg.Queue, cfg.Exchange, err)
	}

	timeout := cfg.HandleTimeout
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}

	return &Consumer{
		channel:       ch,
		queue:         cfg.Queue,
		tag:           "smartbag-telemetry",
		prefetchCount: cfg.PrefetchCount,
		handleTimeout: timeout,
		logger:        cfg.Logger.With(zap.String("queue", cfg.Queue)),
		handler:       cfg.MessageProcessor,
	}, nil
}

// declareTelemetryQueue declares the work queue dead-lettering into the DLQ.
// A queue that already exists without DLX arguments makes the broker close the
// channel, so a fresh channel is opened and the plain queue is used.
func declareTelemetryQueue(ch *amqp.Channel, cfg ConsumerConfig) (*amqp.Channel, error) {
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	_, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args)
	if err == nil {
		return ch, nil
	}
	cfg.Logger.Warn("telemetry queue exists without dead-lettering, using it as is",
		zap.String("queue", cfg.Queue), zap.Error(err))

	ch, err = openChannel(cfg.Connection, cfg.PrefetchCount)
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclarePassive(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	return ch, nil
}

func openChannel(conn *Connection, prefetch int) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	return ch, nil
}

// Start consumes in the background until ctx is cancelled or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		c.tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("telemetry consumer started", zap.Int("prefetch", c.prefetchCount))

	c.stopped = make(chan struct{})
	go func() {
		defer close(c.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("delivery channel closed by broker")
					return
				}
				c.handle(ctx, d)
			}
		}
	}()

	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	// a message already taken off the queue is finished even during shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.handleTimeout)
	defer cancel()

	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack delivery", zap.Error(ackErr))
		}
		return
	}

	c.logger.Warn("telemetry dead-lettered",
		zap.Error(err),
		zap.String("routing_key", d.RoutingKey),
		zap.Bool("redelivered", d.Redelivered),
		zap.Int("body_size", len(d.Body)),
	)
	// requeue=false routes through the queue's dead-letter exchange
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.logger.Error("failed to nack delivery", zap.Error(nackErr))
	}
}

// Close cancels the subscription, waits for the message in hand and closes the channel
func (c *Consumer) Close() error {
	if c.channel == nil {
		return nil
	}
	if err := c.channel.Cancel(c.tag, false); err != nil {
		c.logger.Warn("failed to cancel consumer", zap.Error(err))
	}
	if c.stopped != nil {
		<-c.stopped
	}
	return c.channel.Close()
}
