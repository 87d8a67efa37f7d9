package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, msg mq.TelemetryMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestProcessor_AppliesEachKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.claimed(t, "INF-0000-0A01", device.BagTypeDualZone, "U1")
	sentAt := f.clock.Now().Add(-time.Minute).Format(time.RFC3339)
	id := d.ID.String()

	msgs := []mq.TelemetryMessage{
		{RequestID: uuid.NewString(), DeviceID: id, Kind: mq.KindHeartbeat, SentAt: sentAt, Status: ptr(true)},
		{RequestID: uuid.NewString(), DeviceID: id, Kind: mq.KindHotZone, SentAt: sentAt, Temp: ptr(61.0), Humidity: ptr(30.0)},
		{RequestID: uuid.NewString(), DeviceID: id, Kind: mq.KindColdZone, SentAt: sentAt, Temp: ptr(3.0), Humidity: ptr(70.0)},
		{RequestID: uuid.NewString(), DeviceID: id, Kind: mq.KindBattery, SentAt: sentAt, ChargeLevel: ptr(88.0), Voltage: ptr(12.4), IsCharging: true},
	}
	for _, msg := range msgs {
		require.NoError(t, f.processor.ProcessMessage(ctx, message(t, msg)), msg.Kind)
	}

	stored, err := f.registry.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status)
	assert.Equal(t, 61.0, stored.HotZone.CurrentTemp)
	assert.Equal(t, 3.0, stored.ColdZone.CurrentTemp)
	assert.Equal(t, 88.0, stored.Battery.ChargeLevel)
	assert.True(t, stored.Battery.IsCharging)
}

func TestProcessor_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.claimed(t, "INF-0000-0A02", device.BagTypeHeatingOnly, "U1")
	now := f.clock.Now()
	id := d.ID.String()

	cases := map[string][]byte{
		"bad json":       []byte("{"),
		"bad device id":  message(t, mq.TelemetryMessage{DeviceID: "bag-1", Kind: mq.KindHeartbeat, SentAt: now.Format(time.RFC3339), Status: ptr(true)}),
		"stale":          message(t, mq.TelemetryMessage{DeviceID: id, Kind: mq.KindHeartbeat, SentAt: now.Add(-time.Hour).Format(time.RFC3339), Status: ptr(true)}),
		"unknown kind":   message(t, mq.TelemetryMessage{DeviceID: id, Kind: "gps", SentAt: now.Format(time.RFC3339)}),
		"missing status": message(t, mq.TelemetryMessage{DeviceID: id, Kind: mq.KindHeartbeat, SentAt: now.Format(time.RFC3339)}),
		"cold on heating-only": message(t, mq.TelemetryMessage{DeviceID: id, Kind: mq.KindColdZone, SentAt: now.Format(time.RFC3339),
			Temp: ptr(4.0), Humidity: ptr(50.0)}),
		"unknown device": message(t, mq.TelemetryMessage{DeviceID: uuid.NewString(), Kind: mq.KindHeartbeat, SentAt: now.Format(time.RFC3339), Status: ptr(true)}),
	}
	for name, body := range cases {
		assert.Error(t, f.processor.ProcessMessage(ctx, body), name)
	}

	stored, err := f.registry.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, stored.Status, "rejected messages must not change state")
}

func TestProcessor_ErrorsKeepTheirKind(t *testing.T) {
	f := newFixture(t)
	d := f.claimed(t, "INF-0000-0A03", device.BagTypeHeatingOnly, "U1")

	body := message(t, mq.TelemetryMessage{DeviceID: d.ID.String(), Kind: mq.KindColdZone, SentAt: f.clock.Now().Format(time.RFC3339),
		Temp: ptr(4.0), Humidity: ptr(50.0)})
	assert.ErrorIs(t, f.processor.ProcessMessage(context.Background(), body), device.ErrUnsupportedZone)
}
