package simulator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
)

// Transport delivers readings to the service
type Transport interface {
	Heartbeat(ctx context.Context, online bool) error
	ZoneReading(ctx context.Context, zone device.Zone, temp, humidity float64) error
	Battery(ctx context.Context, charge, voltage float64, charging bool) error
}

var (
	_ Transport = (*Client)(nil)
	_ Transport = (*QueueTransport)(nil)
)

// TelemetryPublisher is satisfied by mq.Publisher
type TelemetryPublisher interface {
	PublishTelemetry(ctx context.Context, msg mq.TelemetryMessage) error
}

// QueueTransport sends readings through the telemetry exchange instead of HTTP
type QueueTransport struct {
	publisher TelemetryPublisher
	deviceID  uuid.UUID
	now       func() time.Time
}

func NewQueueTransport(publisher TelemetryPublisher, deviceID uuid.UUID, now func() time.Time) *QueueTransport {
	if now == nil {
		now = time.Now
	}
	return &QueueTransport{publisher: publisher, deviceID: deviceID, now: now}
}

func (q *QueueTransport) Heartbeat(ctx context.Context, online bool) error {
	msg := q.message(mq.KindHeartbeat)
	msg.Status = &online
	return q.publisher.PublishTelemetry(ctx, msg)
}

func (q *QueueTransport) ZoneReading(ctx context.Context, zone device.Zone, temp, humidity float64) error {
	kind := mq.KindHotZone
	if zone == device.ZoneCold {
		kind = mq.KindColdZone
	}
	msg := q.message(kind)
	msg.Temp = &temp
	msg.Humidity = &humidity
	return q.publisher.PublishTelemetry(ctx, msg)
}

func (q *QueueTransport) Battery(ctx context.Context, charge, voltage float64, charging bool) error {
	msg := q.message(mq.KindBattery)
	msg.ChargeLevel = &charge
	msg.Voltage = &voltage
	msg.IsCharging = charging
	return q.publisher.PublishTelemetry(ctx, msg)
}

func (q *QueueTransport) message(kind string) mq.TelemetryMessage {
	return mq.TelemetryMessage{
		RequestID: uuid.NewString(),
		DeviceID:  q.deviceID.String(),
		Kind:      kind,
		SentAt:    q.now().UTC().Format(time.RFC3339Nano),
	}
}
