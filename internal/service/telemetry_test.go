package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/alert"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetry_Heartbeat(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D1", device.BagTypeDualZone, "U1")

	f.clock.Advance(5 * time.Second)
	updated, err := f.telemetry.Heartbeat(context.Background(), d.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Status)
	assert.Equal(t, f.clock.Now(), *updated.LastSeen)
	assert.Contains(t, f.publisher.types(), mq.TelemetryEvent(mq.KindHeartbeat))

	_, err = f.telemetry.Heartbeat(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, device.ErrNotFound)
}

func TestTelemetry_ZoneReadingOverwrites(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D2", device.BagTypeDualZone, "U1")
	ctx := context.Background()

	_, err := f.telemetry.RecordZoneReading(ctx, d.ID, device.ZoneHot, service.ZoneReadingInput{Temp: ptr(60.5), Humidity: ptr(35.0)})
	require.NoError(t, err)
	updated, err := f.telemetry.RecordZoneReading(ctx, d.ID, device.ZoneCold, service.ZoneReadingInput{Temp: ptr(4.0), Humidity: ptr(60.0)})
	require.NoError(t, err)

	assert.Equal(t, 60.5, updated.HotZone.CurrentTemp)
	assert.Equal(t, 35.0, updated.HotZone.Humidity)
	assert.Equal(t, 4.0, updated.ColdZone.CurrentTemp)
	assert.Equal(t, 60.0, updated.ColdZone.Humidity)
	assert.Equal(t, device.DefaultHotTarget, updated.HotZone.TargetTemp, "readings leave settings alone")
}

func TestTelemetry_ColdReadingOnHeatingOnly(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D3", device.BagTypeHeatingOnly, "U1")
	ctx := context.Background()
	before, _ := f.registry.FindByID(ctx, d.ID)

	f.clock.Advance(time.Minute)
	_, err := f.telemetry.RecordZoneReading(ctx, d.ID, device.ZoneCold, service.ZoneReadingInput{Temp: ptr(4.0), Humidity: ptr(60.0)})
	assert.ErrorIs(t, err, device.ErrUnsupportedZone)

	after, _ := f.registry.FindByID(ctx, d.ID)
	assert.Equal(t, before, after)

	history, err := f.telemetry.History(ctx, d.ID, device.ComponentCold, time.Time{}, 0)
	assert.ErrorIs(t, err, device.ErrUnsupportedZone)
	assert.Nil(t, history)
}

func TestTelemetry_ZoneReadingValidation(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D4", device.BagTypeDualZone, "U1")

	cases := []service.ZoneReadingInput{
		{Temp: nil, Humidity: ptr(10.0)},
		{Temp: ptr(20.0), Humidity: nil},
		{Temp: ptr(math.NaN()), Humidity: ptr(10.0)},
		{Temp: ptr(200.0), Humidity: ptr(10.0)},
		{Temp: ptr(20.0), Humidity: ptr(120.0)},
	}
	for _, in := range cases {
		_, err := f.telemetry.RecordZoneReading(context.Background(), d.ID, device.ZoneHot, in)
		assert.ErrorIs(t, err, device.ErrValidation)
	}
}

func TestTelemetry_BatteryIsClamped(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D5", device.BagTypeHeatingOnly, "U1")
	ctx := context.Background()

	updated, err := f.telemetry.RecordBattery(ctx, d.ID, service.BatteryInput{ChargeLevel: ptr(150.0), Voltage: ptr(12.7)})
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.Battery.ChargeLevel)

	updated, err = f.telemetry.RecordBattery(ctx, d.ID, service.BatteryInput{ChargeLevel: ptr(-10.0), Voltage: ptr(10.2), IsCharging: true})
	require.NoError(t, err)
	assert.Equal(t, 0.0, updated.Battery.ChargeLevel)
	assert.True(t, updated.Battery.IsCharging)

	_, err = f.telemetry.RecordBattery(ctx, d.ID, service.BatteryInput{Voltage: ptr(12.0)})
	assert.ErrorIs(t, err, device.ErrValidation)
}

func TestTelemetry_LowBatteryPublishesAlerts(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D6", device.BagTypeHeatingOnly, "U1")
	ctx := context.Background()

	_, err := f.telemetry.Heartbeat(ctx, d.ID, true)
	require.NoError(t, err)
	_, err = f.telemetry.RecordBattery(ctx, d.ID, service.BatteryInput{ChargeLevel: ptr(15.0), Voltage: ptr(11.0)})
	require.NoError(t, err)

	event, ok := f.publisher.last(mq.EventAlerts)
	require.True(t, ok)
	alerts, ok := event.Payload.([]alert.Alert)
	require.True(t, ok)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TypeLowBattery, alerts[0].Type)
}

func TestTelemetry_HistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-00D7", device.BagTypeDualZone, "U1")
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		f.clock.Advance(time.Second)
		_, err := f.telemetry.RecordZoneReading(ctx, d.ID, device.ZoneHot, service.ZoneReadingInput{Temp: ptr(float64(40 + i)), Humidity: ptr(30.0)})
		require.NoError(t, err)
	}

	history, err := f.telemetry.History(ctx, d.ID, device.ComponentHot, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 5, "fixture keeps five samples")
	assert.Equal(t, 47.0, *history[0].Temp)
	assert.Equal(t, 43.0, *history[4].Temp)

	battery, err := f.telemetry.History(ctx, d.ID, device.ComponentBattery, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, battery)
}
