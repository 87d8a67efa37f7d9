package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles device event publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishDeviceEvent publishes a device event under its own routing key
func (p *Publisher) PublishDeviceEvent(ctx context.Context, event DeviceEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.publish(ctx, event.RoutingKey(), body, event.OccurredAt); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published device event",
		zap.String("routing_key", event.RoutingKey()),
		zap.String("device_id", event.DeviceID),
	)
	return nil
}

// PublishTelemetry sends a device reading to the telemetry exchange
func (p *Publisher) PublishTelemetry(ctx context.Context, msg TelemetryMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	if err := p.publish(ctx, TelemetryRoutingKey(msg.Kind), body, time.Now()); err != nil {
		return fmt.Errorf("failed to publish telemetry: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte, at time.Time) error {
	return p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    at,
		},
	)
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NopPublisher drops events; used when RabbitMQ is not configured
type NopPublisher struct{}

func (NopPublisher) PublishDeviceEvent(ctx context.Context, event DeviceEvent) error {
	return nil
}

func declareTopicExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
