package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BagType is fixed at manufacture and decides whether the bag has a cold zone
type BagType string

const (
	BagTypeHeatingOnly BagType = "heating-only"
	BagTypeDualZone    BagType = "dual-zone"
)

// Valid reports whether t is a known bag type
func (t BagType) Valid() bool {
	return t == BagTypeHeatingOnly || t == BagTypeDualZone
}

// HasColdZone reports whether bags of this type carry a cold compartment
func (t BagType) HasColdZone() bool {
	return t == BagTypeDualZone
}

// ParseBagType converts user input into a BagType
func ParseBagType(s string) (BagType, error) {
	t := BagType(s)
	if !t.Valid() {
		return "", NewValidationError("bagType", fmt.Sprintf("must be %q or %q", BagTypeHeatingOnly, BagTypeDualZone))
	}
	return t, nil
}

// Zone identifies a thermal compartment
type Zone string

const (
	ZoneHot  Zone = "hot"
	ZoneCold Zone = "cold"
)

// ParseZone converts a path segment into a Zone
func ParseZone(s string) (Zone, error) {
	switch Zone(s) {
	case ZoneHot, ZoneCold:
		return Zone(s), nil
	}
	return "", NewValidationError("zone", "must be \"hot\" or \"cold\"")
}

// Default state for freshly manufactured bags
const (
	DefaultAmbientTemp    = 25.0
	DefaultHotTarget      = 25.0
	DefaultColdTarget     = 5.0
	DefaultSafetyLow      = 0.0
	DefaultSafetyHigh     = 100.0
	DefaultChargeLevel    = 100.0
	DefaultBatteryVoltage = 12.6
	DefaultFirmware       = "1.0.0"
	DefaultHardware       = "v1.0"
)

// SafetyBounds is the inclusive temperature window a zone is expected to stay in
type SafetyBounds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether temp lies within the bounds
func (b SafetyBounds) Contains(temp float64) bool {
	return temp >= b.Low && temp <= b.High
}

// HotZone is the heated compartment every bag has
type HotZone struct {
	CurrentTemp float64      `json:"currentTemp"`
	TargetTemp  float64      `json:"targetTemp"`
	Humidity    float64      `json:"humidity"`
	HeaterOn    bool         `json:"heaterOn"`
	FanOn       bool         `json:"fanOn"`
	Safety      SafetyBounds `json:"safety"`
}

// ColdZone only exists on dual-zone bags
type ColdZone struct {
	CurrentTemp float64      `json:"currentTemp"`
	TargetTemp  float64      `json:"targetTemp"`
	Humidity    float64      `json:"humidity"`
	CoolerOn    bool         `json:"coolerOn"`
	FanOn       bool         `json:"fanOn"`
	Safety      SafetyBounds `json:"safety"`
}

// Battery holds the last reported battery state
type Battery struct {
	ChargeLevel float64 `json:"chargeLevel"`
	Voltage     float64 `json:"voltage"`
	IsCharging  bool    `json:"isCharging"`
}

// Device is the registry record for one physical bag.
// ColdZone is nil unless BagType is dual-zone.
type Device struct {
	ID                uuid.UUID  `json:"id"`
	DeviceCode        string     `json:"deviceCode"`
	SecretHash        string     `json:"-"`
	Name              string     `json:"name"`
	BagType           BagType    `json:"bagType"`
	OwnerID           *string    `json:"ownerId"`
	IsClaimed         bool       `json:"isClaimed"`
	ClaimedAt         *time.Time `json:"claimedAt,omitempty"`
	Status            bool       `json:"status"`
	LastSeen          *time.Time `json:"lastSeen,omitempty"`
	HotZone           HotZone    `json:"hotZone"`
	ColdZone          *ColdZone  `json:"coldZone,omitempty"`
	Battery           Battery    `json:"battery"`
	HardwareVersion   string     `json:"hardwareVersion"`
	FirmwareVersion   string     `json:"firmwareVersion"`
	ManufacturingDate time.Time  `json:"manufacturingDate"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NewParams holds the manufacturing-time attributes of a bag
type NewParams struct {
	Code            string
	SecretHash      string
	BagType         BagType
	HardwareVersion string
	FirmwareVersion string
	Now             time.Time
}

// New builds an unclaimed device with factory defaults
func New(p NewParams) (*Device, error) {
	if !p.BagType.Valid() {
		return nil, NewValidationError("bagType", fmt.Sprintf("unknown bag type %q", p.BagType))
	}
	if p.Code == "" {
		return nil, NewValidationError("deviceCode", "required")
	}
	if p.SecretHash == "" {
		return nil, NewValidationError("deviceSecret", "required")
	}

	hw := p.HardwareVersion
	if hw == "" {
		hw = DefaultHardware
	}
	fw := p.FirmwareVersion
	if fw == "" {
		fw = DefaultFirmware
	}
	now := p.Now.UTC()

	d := &Device{
		ID:         uuid.New(),
		DeviceCode: p.Code,
		SecretHash: p.SecretHash,
		Name:       DefaultName(p.Code),
		BagType:    p.BagType,
		HotZone: HotZone{
			CurrentTemp: DefaultAmbientTemp,
			TargetTemp:  DefaultHotTarget,
			Safety:      SafetyBounds{Low: DefaultSafetyLow, High: DefaultSafetyHigh},
		},
		Battery: Battery{
			ChargeLevel: DefaultChargeLevel,
			Voltage:     DefaultBatteryVoltage,
		},
		HardwareVersion:   hw,
		FirmwareVersion:   fw,
		ManufacturingDate: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.BagType.HasColdZone() {
		d.ColdZone = &ColdZone{
			CurrentTemp: DefaultAmbientTemp,
			TargetTemp:  DefaultColdTarget,
			Safety:      SafetyBounds{Low: DefaultSafetyLow, High: DefaultSafetyHigh},
		}
	}
	return d, nil
}

// DefaultName is the display name a bag carries until its owner names it
func DefaultName(code string) string {
	suffix := code
	if len(code) > 4 {
		suffix = code[len(code)-4:]
	}
	return "Smart Bag " + suffix
}

// Clone returns a deep copy so callers can't mutate shared state
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.OwnerID != nil {
		owner := *d.OwnerID
		c.OwnerID = &owner
	}
	if d.ClaimedAt != nil {
		at := *d.ClaimedAt
		c.ClaimedAt = &at
	}
	if d.LastSeen != nil {
		at := *d.LastSeen
		c.LastSeen = &at
	}
	if d.ColdZone != nil {
		cz := *d.ColdZone
		c.ColdZone = &cz
	}
	return &c
}

// OwnedBy reports whether the device is claimed by ownerID
func (d *Device) OwnedBy(ownerID string) bool {
	return d.IsClaimed && d.OwnerID != nil && *d.OwnerID == ownerID
}

// Capabilities summarises what a device can report, returned to it on authentication
type Capabilities struct {
	HotZone  bool `json:"hotZone"`
	ColdZone bool `json:"coldZone"`
	Battery  bool `json:"battery"`
}

// Capabilities derives the capability summary from the bag type
func (d *Device) Capabilities() Capabilities {
	return Capabilities{
		HotZone:  true,
		ColdZone: d.BagType.HasColdZone(),
		Battery:  true,
	}
}

// ZoneReading is a sensor sample for one zone
type ZoneReading struct {
	Temp     float64
	Humidity float64
}

// ZoneSettings is the owner-controlled part of a zone.
// ActuatorOn maps to the heater on the hot zone and the cooler on the cold zone.
type ZoneSettings struct {
	TargetTemp float64
	ActuatorOn bool
	FanOn      bool
}

// BatteryReading is a battery sample. ChargeLevel is clamped before storage.
type BatteryReading struct {
	ChargeLevel float64
	Voltage     float64
	IsCharging  bool
}

// ClampCharge limits a charge level to [0, 100]
func ClampCharge(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// Component names an observation series
type Component string

const (
	ComponentHot     Component = "hot"
	ComponentCold    Component = "cold"
	ComponentBattery Component = "battery"
)

// ParseComponent converts a query value into a Component
func ParseComponent(s string) (Component, error) {
	switch Component(s) {
	case ComponentHot, ComponentCold, ComponentBattery:
		return Component(s), nil
	}
	return "", NewValidationError("component", "must be one of hot, cold, battery")
}

// ComponentForZone maps a zone to its observation series
func ComponentForZone(z Zone) Component {
	if z == ZoneCold {
		return ComponentCold
	}
	return ComponentHot
}

// Observation is one retained sample in a device's bounded history
type Observation struct {
	Component   Component `json:"component"`
	Temp        *float64  `json:"temp,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	ChargeLevel *float64  `json:"chargeLevel,omitempty"`
	Voltage     *float64  `json:"voltage,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}
