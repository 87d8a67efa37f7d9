package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"go.uber.org/zap"
)

// Clock returns the current time
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// EventPublisher delivers device events. *mq.Publisher and mq.NopPublisher implement it.
type EventPublisher interface {
	PublishDeviceEvent(ctx context.Context, event mq.DeviceEvent) error
}

// SecretHasher hashes and checks device secrets
type SecretHasher interface {
	Hash(secret string) (string, error)
	Matches(hash, secret string) (bool, error)
}

// TokenIssuer mints device bearer tokens
type TokenIssuer interface {
	Issue(deviceID uuid.UUID) (string, time.Time, error)
}

// events is the shared publish path. Failures are logged and never fail the caller.
type events struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func (e events) publish(ctx context.Context, typ string, d *device.Device, at time.Time, payload any) {
	event := mq.DeviceEvent{
		Type:       typ,
		DeviceID:   d.ID.String(),
		DeviceCode: d.DeviceCode,
		OwnerID:    d.OwnerID,
		OccurredAt: at,
		Payload:    payload,
	}
	if err := e.publisher.PublishDeviceEvent(ctx, event); err != nil {
		e.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("type", typ),
			zap.String("device_id", event.DeviceID),
		)
	}
}
