package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/zap"
)

// Reasons a code fails verification
const (
	ReasonNotFound       = "not_found"
	ReasonAlreadyClaimed = "already_claimed"
)

// VerifyResult tells a prospective owner whether a code can be claimed.
// Failure is a result here, not an error.
type VerifyResult struct {
	Valid             bool           `json:"valid"`
	Reason            string         `json:"reason,omitempty"`
	DeviceCode        string         `json:"deviceCode"`
	BagType           device.BagType `json:"bagType,omitempty"`
	HardwareVersion   string         `json:"hardwareVersion,omitempty"`
	ManufacturingDate *time.Time     `json:"manufacturingDate,omitempty"`
}

// ClaimRequest is what an owner submits to take a device
type ClaimRequest struct {
	DeviceCode string `json:"deviceCode"`
	Name       string `json:"name"`
}

// Claims runs the verify-then-claim workflow
type Claims struct {
	store     device.Store
	validator *validator.Validator
	events    events
	logger    *zap.Logger
	now       Clock
}

// NewClaims creates a new claim workflow service
func NewClaims(store device.Store, validator *validator.Validator, publisher EventPublisher, logger *zap.Logger, now Clock) *Claims {
	return &Claims{
		store:     store,
		validator: validator,
		events:    events{publisher: publisher, logger: logger},
		logger:    logger,
		now:       now,
	}
}

// Verify reports whether code names an unclaimed device
func (c *Claims) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	normalized, err := c.validator.DeviceCode(code)
	result := &VerifyResult{DeviceCode: normalized}
	if err != nil {
		result.Reason = ReasonNotFound
		return result, nil
	}

	d, err := c.store.FindByCode(ctx, normalized)
	if errors.Is(err, device.ErrNotFound) {
		result.Reason = ReasonNotFound
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if d.IsClaimed {
		result.Reason = ReasonAlreadyClaimed
		return result, nil
	}

	manufactured := d.ManufacturingDate
	result.Valid = true
	result.BagType = d.BagType
	result.HardwareVersion = d.HardwareVersion
	result.ManufacturingDate = &manufactured
	return result, nil
}

// Claim binds the device to ownerID. The store re-checks the claim state in the same
// write, so a verify that raced with another claim still fails here.
func (c *Claims) Claim(ctx context.Context, ownerID string, req ClaimRequest) (*device.Device, error) {
	owner, err := c.validator.OwnerID(ownerID)
	if err != nil {
		return nil, err
	}
	code, err := c.validator.DeviceCode(req.DeviceCode)
	if err != nil {
		if code == "" {
			return nil, err
		}
		// a well-formed request for a code that cannot exist
		return nil, fmt.Errorf("%w: code %s", device.ErrNotFound, code)
	}
	name, err := c.validator.DisplayName(req.Name)
	if err != nil {
		return nil, err
	}

	now := c.now()
	d, err := c.store.Claim(ctx, code, owner, name, now)
	if err != nil {
		if errors.Is(err, device.ErrAlreadyClaimed) {
			c.logger.Warn("claim rejected, device already claimed", zap.String("device_code", code))
		}
		return nil, err
	}

	c.logger.Info("device claimed",
		zap.String("device_id", d.ID.String()),
		zap.String("device_code", d.DeviceCode),
		zap.String("owner_id", owner),
	)
	c.events.publish(ctx, mq.EventClaimed, d, now, map[string]string{"name": d.Name})
	return d, nil
}
