package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
)

var _ device.Store = (*MemoryStore)(nil)

type seriesKey struct {
	id        uuid.UUID
	component device.Component
}

// MemoryStore is an in-process device.Store for local runs and tests.
// All mutations happen under one lock, which makes Claim atomic.
type MemoryStore struct {
	mu           sync.RWMutex
	devices      map[uuid.UUID]*device.Device
	byCode       map[string]uuid.UUID
	observations map[seriesKey][]device.Observation
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:      make(map[uuid.UUID]*device.Device),
		byCode:       make(map[string]uuid.UUID),
		observations: make(map[seriesKey][]device.Observation),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[d.DeviceCode]; exists {
		return fmt.Errorf("%w: %s", device.ErrCodeConflict, d.DeviceCode)
	}
	if _, exists := s.devices[d.ID]; exists {
		return fmt.Errorf("device id %s already exists", d.ID)
	}
	s.devices[d.ID] = d.Clone()
	s.byCode[d.DeviceCode] = d.ID
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", device.ErrNotFound, id)
	}
	return d.Clone(), nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", device.ErrNotFound, code)
	}
	return s.devices[id].Clone(), nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*device.Device{}
	for _, d := range s.devices {
		if d.OwnedBy(ownerID) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].ClaimedAt, out[j].ClaimedAt
		if !ai.Equal(*aj) {
			return ai.After(*aj)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, code, ownerID, name string, at time.Time) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", device.ErrNotFound, code)
	}
	d := s.devices[id]
	if d.IsClaimed {
		return nil, fmt.Errorf("%w: code %s", device.ErrAlreadyClaimed, code)
	}

	owner := ownerID
	claimedAt := at
	seen := at
	d.OwnerID = &owner
	d.IsClaimed = true
	d.ClaimedAt = &claimedAt
	d.LastSeen = &seen
	if name != "" {
		d.Name = name
	}
	d.UpdatedAt = at
	return d.Clone(), nil
}

func (s *MemoryStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		d.LastSeen = &at
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, online bool, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		d.Status = online
		d.LastSeen = &at
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) UpdateZoneReading(ctx context.Context, id uuid.UUID, zone device.Zone, r device.ZoneReading, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		switch zone {
		case device.ZoneCold:
			if d.ColdZone == nil {
				return unsupported(zone, id)
			}
			d.ColdZone.CurrentTemp = r.Temp
			d.ColdZone.Humidity = r.Humidity
		default:
			d.HotZone.CurrentTemp = r.Temp
			d.HotZone.Humidity = r.Humidity
		}
		d.LastSeen = &at
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) UpdateBattery(ctx context.Context, id uuid.UUID, b device.Battery, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		d.Battery = b
		d.LastSeen = &at
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) UpdateZoneSettings(ctx context.Context, id uuid.UUID, zone device.Zone, set device.ZoneSettings, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		switch zone {
		case device.ZoneCold:
			if d.ColdZone == nil {
				return unsupported(zone, id)
			}
			d.ColdZone.TargetTemp = set.TargetTemp
			d.ColdZone.CoolerOn = set.ActuatorOn
			d.ColdZone.FanOn = set.FanOn
		default:
			d.HotZone.TargetTemp = set.TargetTemp
			d.HotZone.HeaterOn = set.ActuatorOn
			d.HotZone.FanOn = set.FanOn
		}
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) UpdateSafetyBounds(ctx context.Context, id uuid.UUID, zone device.Zone, b device.SafetyBounds, at time.Time) error {
	return s.update(id, func(d *device.Device) error {
		switch zone {
		case device.ZoneCold:
			if d.ColdZone == nil {
				return unsupported(zone, id)
			}
			d.ColdZone.Safety = b
		default:
			d.HotZone.Safety = b
		}
		d.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) AppendObservation(ctx context.Context, id uuid.UUID, o device.Observation, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("%w: id %s", device.ErrNotFound, id)
	}

	key := seriesKey{id: id, component: o.Component}
	series := append(s.observations[key], o)
	// keep chronological order so trimming drops from the front
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].RecordedAt.Before(series[j].RecordedAt)
	})
	if keep > 0 && len(series) > keep {
		series = append([]device.Observation(nil), series[len(series)-keep:]...)
	}
	s.observations[key] = series
	return nil
}

func (s *MemoryStore) ListObservations(ctx context.Context, id uuid.UUID, c device.Component, since time.Time, limit int) ([]device.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.observations[seriesKey{id: id, component: c}]
	out := []device.Observation{}
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].RecordedAt.After(since) {
			break
		}
		out = append(out, series[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// update applies fn to the stored record under the write lock
func (s *MemoryStore) update(id uuid.UUID, fn func(d *device.Device) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("%w: id %s", device.ErrNotFound, id)
	}
	return fn(d)
}

func unsupported(zone device.Zone, id uuid.UUID) error {
	return fmt.Errorf("%w: %s zone on device %s", device.ErrUnsupportedZone, zone, id)
}
