package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/septivank/smartbag-service/internal/auth"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/repository"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegistry_CreateGeneratesCodeAndSecret(t *testing.T) {
	f := newFixture(t)

	created, err := f.registry.Create(context.Background(), service.CreateParams{BagType: "dual-zone"})
	require.NoError(t, err)

	d := created.Device
	assert.True(t, device.ValidCode(d.DeviceCode), "code %q", d.DeviceCode)
	assert.Regexp(t, `^INF-`, d.DeviceCode)
	assert.Len(t, created.Secret, 64)
	assert.NotEqual(t, created.Secret, d.SecretHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(d.SecretHash), []byte(created.Secret)))
	assert.False(t, d.IsClaimed)
	assert.NotNil(t, d.ColdZone)
	assert.Equal(t, "v1.0", d.HardwareVersion)

	stored, err := f.registry.FindByCode(context.Background(), d.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, d.ID, stored.ID)
	assert.Contains(t, f.publisher.types(), mq.EventCreated)
}

func TestRegistry_CreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Create(context.Background(), service.CreateParams{BagType: "triple-zone"})
	assert.ErrorIs(t, err, device.ErrValidation)

	_, err = f.registry.Create(context.Background(), service.CreateParams{BagType: "dual-zone", Code: "nope"})
	assert.ErrorIs(t, err, device.ErrValidation)
}

func TestRegistry_CreateExplicitCodeConflict(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "ABC-1111-2222", device.BagTypeDualZone)

	_, err := f.registry.Create(context.Background(), service.CreateParams{BagType: "heating-only", Code: "abc-1111-2222"})
	assert.ErrorIs(t, err, device.ErrCodeConflict)
}

// collidingStore reports a code conflict for the first n creates
type collidingStore struct {
	*repository.MemoryStore
	remaining atomic.Int32
}

func (s *collidingStore) Create(ctx context.Context, d *device.Device) error {
	if s.remaining.Add(-1) >= 0 {
		return device.ErrCodeConflict
	}
	return s.MemoryStore.Create(ctx, d)
}

func TestRegistry_CreateRetriesOnCollision(t *testing.T) {
	store := &collidingStore{MemoryStore: repository.NewMemoryStore()}
	store.remaining.Store(2)
	f := newFixtureWithStore(t, store)

	created, err := f.registry.Create(context.Background(), service.CreateParams{BagType: "heating-only"})
	require.NoError(t, err)
	assert.Nil(t, created.Device.ColdZone)
}

func TestRegistry_CreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := &collidingStore{MemoryStore: repository.NewMemoryStore()}
	store.remaining.Store(10)
	f := newFixtureWithStore(t, store)

	_, err := f.registry.Create(context.Background(), service.CreateParams{BagType: "heating-only"})
	assert.ErrorIs(t, err, device.ErrCodeConflict)
}

func TestRegistry_Authenticate(t *testing.T) {
	f := newFixture(t)
	created := f.provision(t, "INF-0000-00A1", device.BagTypeHeatingOnly)

	session, err := f.registry.Authenticate(context.Background(), "inf-0000-00a1", created.Secret)
	require.NoError(t, err)

	assert.Equal(t, device.Capabilities{HotZone: true, ColdZone: false, Battery: true}, session.Capabilities)
	assert.Equal(t, f.clock.Now().Add(time.Hour), session.ExpiresAt)
	id, err := f.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Device.ID, id)

	stored, _ := f.registry.FindByID(context.Background(), created.Device.ID)
	require.NotNil(t, stored.LastSeen)
	assert.Equal(t, f.clock.Now(), *stored.LastSeen)
}

func TestRegistry_AuthenticateWrongSecretChangesNothing(t *testing.T) {
	f := newFixture(t)
	created := f.provision(t, "INF-0000-00A2", device.BagTypeDualZone)

	_, err := f.registry.Authenticate(context.Background(), created.Device.DeviceCode, "not-the-secret")
	assert.ErrorIs(t, err, device.ErrInvalidCredentials)

	stored, _ := f.registry.FindByID(context.Background(), created.Device.ID)
	assert.Nil(t, stored.LastSeen)
	assert.NotContains(t, f.publisher.types(), mq.EventAuthenticated)

	_, err = f.registry.Authenticate(context.Background(), "INF-FFFF-FFFF", created.Secret)
	assert.ErrorIs(t, err, device.ErrNotFound)

	_, err = f.registry.Authenticate(context.Background(), created.Device.DeviceCode, "")
	assert.ErrorIs(t, err, device.ErrValidation)
}

func TestRegistry_AuthenticatedTokenIsDeviceOnly(t *testing.T) {
	f := newFixture(t)
	created := f.provision(t, "INF-0000-00A3", device.BagTypeDualZone)

	session, err := f.registry.Authenticate(context.Background(), created.Device.DeviceCode, created.Secret)
	require.NoError(t, err)

	owners := auth.NewOwnerVerifier(testTokenSecret, "", f.clock.Now)
	_, err = owners.Verify(session.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRegistry_SummaryAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.claimed(t, "INF-0000-00B1", device.BagTypeDualZone, "u1")
	f.clock.Advance(time.Second)
	b := f.claimed(t, "INF-0000-00B2", device.BagTypeHeatingOnly, "u1")
	f.claimed(t, "INF-0000-00B3", device.BagTypeHeatingOnly, "u2")
	f.provision(t, "INF-0000-00B4", device.BagTypeHeatingOnly)

	_, err := f.telemetry.Heartbeat(ctx, a.ID, true)
	require.NoError(t, err)

	summary, err := f.registry.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalDevices)
	assert.Equal(t, 1, summary.OnlineDevices)
	assert.Equal(t, 1, summary.OfflineDevices)
	require.Len(t, summary.Devices, 2)
	assert.Equal(t, b.ID, summary.Devices[0].ID, "most recently claimed first")

	all, err := f.registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := f.registry.Summary(ctx, "u9")
	require.NoError(t, err)
	assert.Zero(t, none.TotalDevices)
	assert.NotNil(t, none.Devices)
}
