package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/repository"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errReadReplicaDown = errors.New("read replica down")

// flakyReadStore applies writes but fails FindByID once broken is set
type flakyReadStore struct {
	*repository.MemoryStore
	broken atomic.Bool
}

func (s *flakyReadStore) FindByID(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	if s.broken.Load() {
		return nil, errReadReplicaDown
	}
	return s.MemoryStore.FindByID(ctx, id)
}

func newFlakyReadFixture(t *testing.T, code string) (*fixture, *flakyReadStore, *device.Device) {
	t.Helper()
	store := &flakyReadStore{MemoryStore: repository.NewMemoryStore()}
	f := newFixtureWithStore(t, store)
	d := f.claimed(t, code, device.BagTypeDualZone, "U1")
	store.broken.Store(true)
	return f, store, d
}

func TestTelemetry_ReloadFailureAfterWriteStillSucceeds(t *testing.T) {
	f, store, d := newFlakyReadFixture(t, "INF-0000-00R1")
	ctx := context.Background()

	got, err := f.telemetry.RecordBattery(ctx, d.ID, service.BatteryInput{ChargeLevel: ptr(42.0), Voltage: ptr(12.1)})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.telemetry.Heartbeat(ctx, d.ID, true)
	require.NoError(t, err)

	store.broken.Store(false)
	stored, err := store.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, stored.Battery.ChargeLevel)
	assert.True(t, stored.Status)
	assert.NotContains(t, f.publisher.types(), mq.TelemetryEvent(mq.KindBattery))
}

func TestControl_ReloadFailureAfterWriteStillSucceeds(t *testing.T) {
	f, store, d := newFlakyReadFixture(t, "INF-0000-00R2")
	ctx := context.Background()

	got, err := f.control.SetZoneTarget(ctx, d.ID, device.ZoneHot, service.ZoneSettingsInput{TargetTemp: ptr(60.0), ActuatorOn: true})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.control.SetSafetyBounds(ctx, d.ID, device.ZoneCold, service.SafetyBoundsInput{Low: ptr(1.0), High: ptr(7.0)})
	require.NoError(t, err)

	store.broken.Store(false)
	stored, err := store.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, stored.HotZone.TargetTemp)
	assert.True(t, stored.HotZone.HeaterOn)
	assert.NotContains(t, f.publisher.types(), mq.ControlEvent("hot", ""))
}
