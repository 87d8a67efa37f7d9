package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
)

// DeviceColumns is the column list every device query selects, in DeviceRow.ScanTargets order
const DeviceColumns = `id, device_code, secret_hash, name, bag_type, owner_id, is_claimed, claimed_at,
	status, last_seen, hot_zone, cold_zone, battery, hardware_version, firmware_version,
	manufacturing_date, created_at, updated_at`

// DeviceRow represents a device row in the database. Zone and battery state are JSONB documents.
type DeviceRow struct {
	ID                uuid.UUID
	DeviceCode        string
	SecretHash        string
	Name              string
	BagType           string
	OwnerID           *string
	IsClaimed         bool
	ClaimedAt         *time.Time
	Status            bool
	LastSeen          *time.Time
	HotZone           []byte
	ColdZone          []byte
	Battery           []byte
	HardwareVersion   string
	FirmwareVersion   string
	ManufacturingDate time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ScanTargets returns pointers matching DeviceColumns
func (r *DeviceRow) ScanTargets() []any {
	return []any{
		&r.ID,
		&r.DeviceCode,
		&r.SecretHash,
		&r.Name,
		&r.BagType,
		&r.OwnerID,
		&r.IsClaimed,
		&r.ClaimedAt,
		&r.Status,
		&r.LastSeen,
		&r.HotZone,
		&r.ColdZone,
		&r.Battery,
		&r.HardwareVersion,
		&r.FirmwareVersion,
		&r.ManufacturingDate,
		&r.CreatedAt,
		&r.UpdatedAt,
	}
}

// ToDevice decodes the row into a domain device
func (r *DeviceRow) ToDevice() (*device.Device, error) {
	d := &device.Device{
		ID:                r.ID,
		DeviceCode:        r.DeviceCode,
		SecretHash:        r.SecretHash,
		Name:              r.Name,
		BagType:           device.BagType(r.BagType),
		OwnerID:           r.OwnerID,
		IsClaimed:         r.IsClaimed,
		ClaimedAt:         r.ClaimedAt,
		Status:            r.Status,
		LastSeen:          r.LastSeen,
		HardwareVersion:   r.HardwareVersion,
		FirmwareVersion:   r.FirmwareVersion,
		ManufacturingDate: r.ManufacturingDate,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}

	if err := json.Unmarshal(r.HotZone, &d.HotZone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hot_zone: %w", err)
	}
	if err := json.Unmarshal(r.Battery, &d.Battery); err != nil {
		return nil, fmt.Errorf("failed to unmarshal battery: %w", err)
	}
	if d.BagType.HasColdZone() && r.ColdZone != nil {
		d.ColdZone = &device.ColdZone{}
		if err := json.Unmarshal(r.ColdZone, d.ColdZone); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cold_zone: %w", err)
		}
	}
	return d, nil
}

// NewDeviceRow encodes a domain device for insertion
func NewDeviceRow(d *device.Device) (*DeviceRow, error) {
	hot, err := json.Marshal(d.HotZone)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hot_zone: %w", err)
	}
	battery, err := json.Marshal(d.Battery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal battery: %w", err)
	}
	var cold []byte
	if d.ColdZone != nil {
		cold, err = json.Marshal(d.ColdZone)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cold_zone: %w", err)
		}
	}

	return &DeviceRow{
		ID:                d.ID,
		DeviceCode:        d.DeviceCode,
		SecretHash:        d.SecretHash,
		Name:              d.Name,
		BagType:           string(d.BagType),
		OwnerID:           d.OwnerID,
		IsClaimed:         d.IsClaimed,
		ClaimedAt:         d.ClaimedAt,
		Status:            d.Status,
		LastSeen:          d.LastSeen,
		HotZone:           hot,
		ColdZone:          cold,
		Battery:           battery,
		HardwareVersion:   d.HardwareVersion,
		FirmwareVersion:   d.FirmwareVersion,
		ManufacturingDate: d.ManufacturingDate,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

// ObservationRow represents a retained telemetry sample
type ObservationRow struct {
	ID          int64
	DeviceID    uuid.UUID
	Component   string
	Temp        *float64
	Humidity    *float64
	ChargeLevel *float64
	Voltage     *float64
	RecordedAt  time.Time
}

// ToObservation converts the row into its domain form
func (r *ObservationRow) ToObservation() device.Observation {
	return device.Observation{
		Component:   device.Component(r.Component),
		Temp:        r.Temp,
		Humidity:    r.Humidity,
		ChargeLevel: r.ChargeLevel,
		Voltage:     r.Voltage,
		RecordedAt:  r.RecordedAt,
	}
}
