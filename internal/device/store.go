package device

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists device records. Every mutating call touches a single record and only
// the fields it names; concurrent writers to different fields of the same device don't
// overwrite each other, and lastSeen is last-write-wins.
type Store interface {
	// Create inserts a new device. Returns ErrCodeConflict if the code is taken.
	Create(ctx context.Context, d *Device) error

	// FindByID returns ErrNotFound if no record matches.
	FindByID(ctx context.Context, id uuid.UUID) (*Device, error)

	// FindByCode returns ErrNotFound if no record matches.
	FindByCode(ctx context.Context, code string) (*Device, error)

	// ListByOwner returns claimed devices of ownerID, most recently claimed first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Device, error)

	// ListAll returns every device ordered by creation time.
	ListAll(ctx context.Context) ([]*Device, error)

	// Claim binds an unclaimed device to ownerID in one conditional write.
	// Returns ErrNotFound or ErrAlreadyClaimed. An empty name keeps the current one.
	Claim(ctx context.Context, code, ownerID, name string, at time.Time) (*Device, error)

	// Touch sets lastSeen.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetStatus sets the online flag and lastSeen.
	SetStatus(ctx context.Context, id uuid.UUID, online bool, at time.Time) error

	// UpdateZoneReading overwrites the zone's current temperature and humidity and sets lastSeen.
	// Returns ErrUnsupportedZone for the cold zone of a heating-only device.
	UpdateZoneReading(ctx context.Context, id uuid.UUID, zone Zone, r ZoneReading, at time.Time) error

	// UpdateBattery overwrites the battery state and sets lastSeen.
	UpdateBattery(ctx context.Context, id uuid.UUID, b Battery, at time.Time) error

	// UpdateZoneSettings overwrites target and actuator flags of a zone.
	UpdateZoneSettings(ctx context.Context, id uuid.UUID, zone Zone, s ZoneSettings, at time.Time) error

	// UpdateSafetyBounds overwrites the safety window of a zone.
	UpdateSafetyBounds(ctx context.Context, id uuid.UUID, zone Zone, b SafetyBounds, at time.Time) error

	// AppendObservation records a sample and discards the oldest ones beyond keep.
	AppendObservation(ctx context.Context, id uuid.UUID, o Observation, keep int) error

	// ListObservations returns samples newer than since, newest first, at most limit.
	ListObservations(ctx context.Context, id uuid.UUID, c Component, since time.Time, limit int) ([]Observation, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
