package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/septivank/smartbag-service/internal/alert"
	"github.com/septivank/smartbag-service/internal/auth"
	"github.com/septivank/smartbag-service/internal/config"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/repository"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/septivank/smartbag-service/internal/validator"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const testTokenSecret = "device-token-secret-for-tests-0123456789"

// recordingPublisher keeps every event for assertions
type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.DeviceEvent
}

func (p *recordingPublisher) PublishDeviceEvent(ctx context.Context, event mq.DeviceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) last(typ string) (mq.DeviceEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return mq.DeviceEvent{}, false
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *repository.MemoryStore
	clock     *testClock
	publisher *recordingPublisher
	tokens    *auth.DeviceTokens
	validator *validator.Validator
	registry  *service.Registry
	claims    *service.Claims
	telemetry *service.Telemetry
	control   *service.Control
	alerts    *service.Alerts
	processor *service.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, repository.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store device.Store) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &recordingPublisher{}
	v := validator.NewValidator(10)
	detector := alert.NewDetector(20, 10*time.Second)
	tokens := auth.NewDeviceTokens(testTokenSecret, time.Hour, clock.Now)

	f := &fixture{
		clock:     clock,
		publisher: publisher,
		tokens:    tokens,
		validator: v,
	}
	if mem, ok := store.(*repository.MemoryStore); ok {
		f.store = mem
	}

	f.registry = service.NewRegistry(store, auth.NewSecretHasher(bcrypt.MinCost), tokens, v,
		config.DeviceConfig{CodePrefix: "INF", HardwareVersion: "v1.0", FirmwareVersion: "1.0.0"},
		publisher, logger, clock.Now)
	f.claims = service.NewClaims(store, v, publisher, logger, clock.Now)
	f.telemetry = service.NewTelemetry(store, v, detector, 5, publisher, logger, clock.Now)
	f.control = service.NewControl(store, v, publisher, logger, clock.Now)
	f.alerts = service.NewAlerts(store, detector, clock.Now)
	f.processor = service.NewProcessor(f.telemetry, v, logger, clock.Now)
	return f
}

// provision creates a device with a known code
func (f *fixture) provision(t *testing.T, code string, bag device.BagType) *service.CreatedDevice {
	t.Helper()
	created, err := f.registry.Create(context.Background(), service.CreateParams{BagType: string(bag), Code: code})
	require.NoError(t, err)
	return created
}

// claimed provisions and claims a device for owner
func (f *fixture) claimed(t *testing.T, code string, bag device.BagType, owner string) *device.Device {
	t.Helper()
	f.provision(t, code, bag)
	d, err := f.claims.Claim(context.Background(), owner, service.ClaimRequest{DeviceCode: code})
	require.NoError(t, err)
	return d
}

func ptr[T any](v T) *T {
	return &v
}
