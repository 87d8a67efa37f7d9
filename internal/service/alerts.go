package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/alert"
	"github.com/septivank/smartbag-service/internal/device"
)

// Alerts derives warnings from current device state on every call. Nothing is stored.
type Alerts struct {
	store    device.Store
	detector *alert.Detector
	now      Clock
}

// NewAlerts creates a new alert service
func NewAlerts(store device.Store, detector *alert.Detector, now Clock) *Alerts {
	return &Alerts{store: store, detector: detector, now: now}
}

// Get returns the active alerts of a device
func (a *Alerts) Get(ctx context.Context, id uuid.UUID) ([]alert.Alert, error) {
	d, err := a.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.detector.Evaluate(d, a.now()), nil
}
