package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/alert"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/logging"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/zap"
)

// ZoneReadingInput is a raw zone sample as sent by a device
type ZoneReadingInput struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
}

// BatteryInput is a raw battery sample as sent by a device
type BatteryInput struct {
	ChargeLevel *float64 `json:"chargeLevel"`
	Voltage     *float64 `json:"voltage"`
	IsCharging  bool     `json:"isCharging"`
}

// Telemetry folds device readings into the registry record
type Telemetry struct {
	store        device.Store
	validator    *validator.Validator
	detector     *alert.Detector
	historyLimit int
	events       events
	logger       *zap.Logger
	now          Clock
}

// NewTelemetry creates a new telemetry service. historyLimit 0 disables observation history.
func NewTelemetry(
	store device.Store,
	validator *validator.Validator,
	detector *alert.Detector,
	historyLimit int,
	publisher EventPublisher,
	logger *zap.Logger,
	now Clock,
) *Telemetry {
	return &Telemetry{
		store:        store,
		validator:    validator,
		detector:     detector,
		historyLimit: historyLimit,
		events:       events{publisher: publisher, logger: logger},
		logger:       logger,
		now:          now,
	}
}

// Heartbeat sets the online flag and lastSeen
func (t *Telemetry) Heartbeat(ctx context.Context, id uuid.UUID, online bool) (*device.Device, error) {
	now := t.now()
	if err := t.store.SetStatus(ctx, id, online, now); err != nil {
		return nil, err
	}
	return t.ingested(ctx, id, mq.KindHeartbeat, now, map[string]bool{"status": online})
}

// RecordZoneReading overwrites the current temperature and humidity of zone
func (t *Telemetry) RecordZoneReading(ctx context.Context, id uuid.UUID, zone device.Zone, in ZoneReadingInput) (*device.Device, error) {
	reading, err := t.validator.ZoneReading(in.Temp, in.Humidity)
	if err != nil {
		logging.WithDeviceID(t.logger, id).Warn("zone reading rejected", zap.String("zone", string(zone)), zap.Error(err))
		return nil, err
	}

	now := t.now()
	if err := t.store.UpdateZoneReading(ctx, id, zone, reading, now); err != nil {
		return nil, err
	}

	temp, humidity := reading.Temp, reading.Humidity
	t.record(ctx, id, device.Observation{
		Component:  device.ComponentForZone(zone),
		Temp:       &temp,
		Humidity:   &humidity,
		RecordedAt: now,
	})

	kind := mq.KindHotZone
	if zone == device.ZoneCold {
		kind = mq.KindColdZone
	}
	return t.ingested(ctx, id, kind, now, map[string]float64{"temp": temp, "humidity": humidity})
}

// RecordBattery overwrites the battery state; charge is clamped to [0, 100]
func (t *Telemetry) RecordBattery(ctx context.Context, id uuid.UUID, in BatteryInput) (*device.Device, error) {
	battery, err := t.validator.Battery(in.ChargeLevel, in.Voltage, in.IsCharging)
	if err != nil {
		logging.WithDeviceID(t.logger, id).Warn("battery reading rejected", zap.Error(err))
		return nil, err
	}

	now := t.now()
	if err := t.store.UpdateBattery(ctx, id, battery, now); err != nil {
		return nil, err
	}

	level, voltage := battery.ChargeLevel, battery.Voltage
	t.record(ctx, id, device.Observation{
		Component:   device.ComponentBattery,
		ChargeLevel: &level,
		Voltage:     &voltage,
		RecordedAt:  now,
	})

	return t.ingested(ctx, id, mq.KindBattery, now, battery)
}

// History returns retained samples of component newer than since, newest first
func (t *Telemetry) History(ctx context.Context, id uuid.UUID, component device.Component, since time.Time, limit int) ([]device.Observation, error) {
	d, err := t.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if component == device.ComponentCold && !d.BagType.HasColdZone() {
		return nil, fmt.Errorf("%w: cold zone on device %s", device.ErrUnsupportedZone, id)
	}
	return t.store.ListObservations(ctx, id, component, since, t.validator.HistoryLimit(limit))
}

// record appends to the bounded history. History is best effort and never fails a reading.
func (t *Telemetry) record(ctx context.Context, id uuid.UUID, o device.Observation) {
	if t.historyLimit <= 0 {
		return
	}
	if err := t.store.AppendObservation(ctx, id, o, t.historyLimit); err != nil {
		logging.WithDeviceID(t.logger, id).Error("failed to append observation",
			zap.Error(err),
			zap.String("component", string(o.Component)),
		)
	}
}

// ingested reloads the device, then publishes the telemetry event and any alerts it now raises.
// A failed reload after the write is logged and the reading still succeeds with a nil device.
func (t *Telemetry) ingested(ctx context.Context, id uuid.UUID, kind string, at time.Time, payload any) (*device.Device, error) {
	d, err := t.store.FindByID(ctx, id)
	if err != nil {
		logging.WithDeviceID(t.logger, id).Error("reading applied but reload failed",
			zap.Error(err), zap.String("kind", kind))
		return nil, nil
	}

	logging.WithDeviceID(t.logger, id).Debug("telemetry ingested", zap.String("kind", kind))
	t.events.publish(ctx, mq.TelemetryEvent(kind), d, at, payload)

	if alerts := t.detector.Evaluate(d, at); len(alerts) > 0 {
		t.events.publish(ctx, mq.EventAlerts, d, at, alerts)
	}
	return d, nil
}
