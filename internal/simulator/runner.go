package simulator

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/septivank/smartbag-service/internal/device"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// SettingsSource returns the device record with the owner's current settings
type SettingsSource interface {
	Device(ctx context.Context) (*device.Device, error)
}

// Runner drives one simulated bag
type Runner struct {
	bag       *Bag
	settings  SettingsSource
	transport Transport
	interval  time.Duration
	rng       *rand.Rand
	logger    *zap.Logger
	reauth    func(ctx context.Context) error
}

// NewRunner creates a runner. settings may be nil, in which case targets never change.
func NewRunner(bag *Bag, settings SettingsSource, transport Transport, interval time.Duration, seed int64, logger *zap.Logger) *Runner {
	return &Runner{
		bag:       bag,
		settings:  settings,
		transport: transport,
		interval:  interval,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    logger,
	}
}

// WithReauth sets the login used when the service rejects the device token
func (r *Runner) WithReauth(fn func(ctx context.Context) error) *Runner {
	r.reauth = fn
	return r
}

// Run sends one round of telemetry per interval until ctx is done,
// then reports the bag offline
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return r.shutdown()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick advances the bag and sends heartbeat, zone readings and battery.
// Failures are logged and the next tick tries again. A rejected token
// triggers one login before the next tick.
func (r *Runner) Tick(ctx context.Context) {
	expired := false
	if r.settings != nil {
		if d, err := r.settings.Device(ctx); err != nil {
			expired = unauthorized(err)
			r.logger.Warn("failed to refresh settings", zap.Error(err))
		} else {
			r.bag.Apply(d)
		}
	}

	r.bag.Step(r.rng)

	expired = r.send(ctx, "heartbeat", r.transport.Heartbeat(ctx, true)) || expired
	expired = r.send(ctx, "hot_zone", r.transport.ZoneReading(ctx, device.ZoneHot, r.bag.Hot.Temp, r.bag.Hot.Humidity)) || expired
	if r.bag.Cold != nil {
		expired = r.send(ctx, "cold_zone", r.transport.ZoneReading(ctx, device.ZoneCold, r.bag.Cold.Temp, r.bag.Cold.Humidity)) || expired
	}
	expired = r.send(ctx, "battery", r.transport.Battery(ctx, r.bag.Charge, r.bag.Voltage(), r.bag.IsCharging)) || expired

	fields := []zap.Field{
		zap.Float64("hot_temp", r.bag.Hot.Temp),
		zap.Float64("charge", r.bag.Charge),
	}
	if r.bag.Cold != nil {
		fields = append(fields, zap.Float64("cold_temp", r.bag.Cold.Temp))
	}
	r.logger.Info("telemetry sent", fields...)

	if expired {
		r.renew(ctx)
	}
}

// send logs a failed send and reports whether the token was rejected
func (r *Runner) send(ctx context.Context, kind string, err error) bool {
	if err == nil || errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	r.logger.Error("failed to send telemetry", zap.String("kind", kind), zap.Error(err))
	return unauthorized(err)
}

func (r *Runner) renew(ctx context.Context) bool {
	if r.reauth == nil {
		return false
	}
	if err := r.reauth(ctx); err != nil {
		r.logger.Error("failed to renew device token", zap.Error(err))
		return false
	}
	r.logger.Info("device token renewed")
	return true
}

func unauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func (r *Runner) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := r.transport.Heartbeat(ctx, false)
	if unauthorized(err) && r.renew(ctx) {
		err = r.transport.Heartbeat(ctx, false)
	}
	if err != nil {
		r.logger.Error("failed to report offline", zap.Error(err))
		return err
	}
	r.logger.Info("reported offline")
	return nil
}
