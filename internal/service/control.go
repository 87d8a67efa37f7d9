package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/zap"
)

// ZoneSettingsInput is an owner's control request. ActuatorOn drives the heater on the
// hot zone and the cooler on the cold zone.
type ZoneSettingsInput struct {
	TargetTemp *float64 `json:"targetTemp"`
	ActuatorOn bool     `json:"actuatorOn"`
	FanOn      bool     `json:"fanOn"`
}

// SafetyBoundsInput is an owner's safety window request
type SafetyBoundsInput struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
}

// Control applies owner settings to a zone. It never touches current readings.
type Control struct {
	store     device.Store
	validator *validator.Validator
	events    events
	logger    *zap.Logger
	now       Clock
}

// NewControl creates a new control service
func NewControl(store device.Store, validator *validator.Validator, publisher EventPublisher, logger *zap.Logger, now Clock) *Control {
	return &Control{
		store:     store,
		validator: validator,
		events:    events{publisher: publisher, logger: logger},
		logger:    logger,
		now:       now,
	}
}

// SetZoneTarget overwrites target temperature and actuator flags of zone
func (c *Control) SetZoneTarget(ctx context.Context, id uuid.UUID, zone device.Zone, in ZoneSettingsInput) (*device.Device, error) {
	settings, err := c.validator.ZoneSettings(in.TargetTemp, in.ActuatorOn, in.FanOn)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if err := c.store.UpdateZoneSettings(ctx, id, zone, settings, now); err != nil {
		return nil, err
	}

	d, err := c.reload(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}

	c.logger.Info("zone settings updated",
		zap.String("device_id", id.String()),
		zap.String("zone", string(zone)),
		zap.Float64("target_temp", settings.TargetTemp),
		zap.Bool("actuator_on", settings.ActuatorOn),
		zap.Bool("fan_on", settings.FanOn),
	)
	c.events.publish(ctx, mq.ControlEvent(string(zone), ""), d, now, in)
	return d, nil
}

// SetSafetyBounds overwrites the safety window of zone
func (c *Control) SetSafetyBounds(ctx context.Context, id uuid.UUID, zone device.Zone, in SafetyBoundsInput) (*device.Device, error) {
	bounds, err := c.validator.SafetyBounds(in.Low, in.High)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if err := c.store.UpdateSafetyBounds(ctx, id, zone, bounds, now); err != nil {
		return nil, err
	}

	d, err := c.reload(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}

	c.logger.Info("safety bounds updated",
		zap.String("device_id", id.String()),
		zap.String("zone", string(zone)),
		zap.Float64("low", bounds.Low),
		zap.Float64("high", bounds.High),
	)
	c.events.publish(ctx, mq.ControlEvent(string(zone), "safety"), d, now, bounds)
	return d, nil
}

// reload fetches the record after a committed update. A failure is logged, not returned.
func (c *Control) reload(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	d, err := c.store.FindByID(ctx, id)
	if err != nil {
		c.logger.Error("control update applied but reload failed",
			zap.String("device_id", id.String()),
			zap.Error(err),
		)
		return nil, nil
	}
	return d, nil
}
