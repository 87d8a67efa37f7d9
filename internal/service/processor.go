package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/logging"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/zap"
)

// Processor handles telemetry arriving over RabbitMQ
type Processor struct {
	telemetry *Telemetry
	validator *validator.Validator
	logger    *zap.Logger
	now       Clock
}

// NewProcessor creates a new processor service
func NewProcessor(telemetry *Telemetry, validator *validator.Validator, logger *zap.Logger, now Clock) *Processor {
	return &Processor{
		telemetry: telemetry,
		validator: validator,
		logger:    logger,
		now:       now,
	}
}

// ProcessMessage decodes one telemetry message and applies it. Any error sends the message to the DLQ.
func (p *Processor) ProcessMessage(ctx context.Context, body []byte) error {
	var msg mq.TelemetryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, msg.RequestID)

	id, err := uuid.Parse(msg.DeviceID)
	if err != nil {
		return device.NewValidationError("device_id", "must be a UUID")
	}
	reqLogger = logging.WithDeviceID(reqLogger, id)

	// queued readings older than the window must not overwrite fresher state
	if _, err := p.validator.SentAt(msg.SentAt, p.now()); err != nil {
		reqLogger.Warn("telemetry message outside tolerance window", zap.String("sent_at", msg.SentAt))
		return err
	}

	switch msg.Kind {
	case mq.KindHeartbeat:
		if msg.Status == nil {
			return device.NewValidationError("status", "required")
		}
		_, err = p.telemetry.Heartbeat(ctx, id, *msg.Status)
	case mq.KindHotZone:
		_, err = p.telemetry.RecordZoneReading(ctx, id, device.ZoneHot, ZoneReadingInput{Temp: msg.Temp, Humidity: msg.Humidity})
	case mq.KindColdZone:
		_, err = p.telemetry.RecordZoneReading(ctx, id, device.ZoneCold, ZoneReadingInput{Temp: msg.Temp, Humidity: msg.Humidity})
	case mq.KindBattery:
		_, err = p.telemetry.RecordBattery(ctx, id, BatteryInput{ChargeLevel: msg.ChargeLevel, Voltage: msg.Voltage, IsCharging: msg.IsCharging})
	default:
		return device.NewValidationError("kind", fmt.Sprintf("unknown kind %q", msg.Kind))
	}
	if err != nil {
		reqLogger.Error("failed to apply telemetry", zap.Error(err), zap.String("kind", msg.Kind))
		return fmt.Errorf("failed to apply %s telemetry: %w", msg.Kind, err)
	}

	reqLogger.Debug("telemetry message processed", zap.String("kind", msg.Kind))
	return nil
}
