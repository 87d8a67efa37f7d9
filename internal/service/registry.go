package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/config"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/logging"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/zap"
)

const maxCodeAttempts = 5

// CreateParams describes a bag coming off the line. Code is normally left empty and generated.
type CreateParams struct {
	BagType         string `json:"bagType"`
	HardwareVersion string `json:"hardwareVersion"`
	Code            string `json:"deviceCode"`
}

// CreatedDevice carries the plain secret, which is only ever shown once
type CreatedDevice struct {
	Device *device.Device `json:"device"`
	Secret string         `json:"deviceSecret"`
}

// DeviceSession is returned to a device that authenticated with its code and secret
type DeviceSession struct {
	Device       *device.Device      `json:"device"`
	Token        string              `json:"token"`
	ExpiresAt    time.Time           `json:"expiresAt"`
	Capabilities device.Capabilities `json:"capabilities"`
}

// Summary is an owner's fleet overview
type Summary struct {
	TotalDevices   int              `json:"totalDevices"`
	OnlineDevices  int              `json:"onlineDevices"`
	OfflineDevices int              `json:"offlineDevices"`
	Devices        []*device.Device `json:"devices"`
}

// Registry manages device records and device credentials
type Registry struct {
	store     device.Store
	hasher    SecretHasher
	tokens    TokenIssuer
	validator *validator.Validator
	cfg       config.DeviceConfig
	events    events
	logger    *zap.Logger
	now       Clock
}

// NewRegistry creates a new registry service
func NewRegistry(
	store device.Store,
	hasher SecretHasher,
	tokens TokenIssuer,
	validator *validator.Validator,
	cfg config.DeviceConfig,
	publisher EventPublisher,
	logger *zap.Logger,
	now Clock,
) *Registry {
	return &Registry{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		cfg:       cfg,
		events:    events{publisher: publisher, logger: logger},
		logger:    logger,
		now:       now,
	}
}

// Create provisions a new unclaimed device and returns its one-time secret
func (r *Registry) Create(ctx context.Context, p CreateParams) (*CreatedDevice, error) {
	bagType, err := device.ParseBagType(p.BagType)
	if err != nil {
		return nil, err
	}

	explicit := p.Code != ""
	code := ""
	if explicit {
		if code, err = r.validator.DeviceCode(p.Code); err != nil {
			return nil, err
		}
	}

	secret, err := device.GenerateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := r.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	hardware := p.HardwareVersion
	if hardware == "" {
		hardware = r.cfg.HardwareVersion
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		if !explicit {
			if code, err = device.GenerateCode(r.cfg.CodePrefix); err != nil {
				return nil, err
			}
		}

		d, err := device.New(device.NewParams{
			Code:            code,
			SecretHash:      hash,
			BagType:         bagType,
			HardwareVersion: hardware,
			FirmwareVersion: r.cfg.FirmwareVersion,
			Now:             r.now(),
		})
		if err != nil {
			return nil, err
		}

		err = r.store.Create(ctx, d)
		if err == nil {
			r.logger.Info("device created",
				zap.String("device_id", d.ID.String()),
				zap.String("device_code", d.DeviceCode),
				zap.String("bag_type", string(d.BagType)),
			)
			r.events.publish(ctx, mq.EventCreated, d, d.CreatedAt, nil)
			return &CreatedDevice{Device: d, Secret: secret}, nil
		}
		if !errors.Is(err, device.ErrCodeConflict) || explicit {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
		r.logger.Warn("device code collision, retrying", zap.String("device_code", code), zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("failed to create device after %d attempts: %w", maxCodeAttempts, device.ErrCodeConflict)
}

// FindByID returns a device by id
func (r *Registry) FindByID(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	return r.store.FindByID(ctx, id)
}

// FindByCode returns a device by its code
func (r *Registry) FindByCode(ctx context.Context, code string) (*device.Device, error) {
	return r.store.FindByCode(ctx, device.NormalizeCode(code))
}

// ListByOwner returns an owner's devices, most recently claimed first
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]*device.Device, error) {
	return r.store.ListByOwner(ctx, ownerID)
}

// ListAll returns every device
func (r *Registry) ListAll(ctx context.Context) ([]*device.Device, error) {
	return r.store.ListAll(ctx)
}

// Summary counts an owner's devices by online flag
func (r *Registry) Summary(ctx context.Context, ownerID string) (*Summary, error) {
	devices, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s := &Summary{TotalDevices: len(devices), Devices: devices}
	for _, d := range devices {
		if d.Status {
			s.OnlineDevices++
		}
	}
	s.OfflineDevices = s.TotalDevices - s.OnlineDevices
	return s, nil
}

// Authenticate checks a device's code and secret. Only a successful check updates lastSeen.
func (r *Registry) Authenticate(ctx context.Context, code, secret string) (*DeviceSession, error) {
	code = device.NormalizeCode(code)
	if code == "" {
		return nil, device.NewValidationError("deviceCode", "required")
	}
	if secret == "" {
		return nil, device.NewValidationError("deviceSecret", "required")
	}

	d, err := r.store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	ok, err := r.hasher.Matches(d.SecretHash, secret)
	if err != nil {
		return nil, err
	}
	logger := logging.WithDeviceID(r.logger, d.ID)
	if !ok {
		logger.Warn("device authentication failed")
		return nil, fmt.Errorf("%w: code %s", device.ErrInvalidCredentials, code)
	}

	now := r.now()
	if err := r.store.Touch(ctx, d.ID, now); err != nil {
		return nil, err
	}
	d.LastSeen = &now

	token, expiresAt, err := r.tokens.Issue(d.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("device authenticated")
	r.events.publish(ctx, mq.EventAuthenticated, d, now, nil)

	return &DeviceSession{
		Device:       d,
		Token:        token,
		ExpiresAt:    expiresAt,
		Capabilities: d.Capabilities(),
	}, nil
}
