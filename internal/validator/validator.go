package validator

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/tools/timeparser"
)

// Input limits shared by the dashboard and the API
const (
	MinTemp        = -50.0
	MaxTemp        = 150.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MinNameLength  = 2
	MaxNameLength  = 50
	MaxHistoryRows = 1000
)

// Validator checks raw device and owner input before it reaches the registry
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ZoneReading validates a sensor sample. Both fields are required.
func (v *Validator) ZoneReading(temp, humidity *float64) (device.ZoneReading, error) {
	t, err := temperature("temp", temp)
	if err != nil {
		return device.ZoneReading{}, err
	}
	if humidity == nil {
		return device.ZoneReading{}, device.NewValidationError("humidity", "required")
	}
	if !finite(*humidity) || *humidity < MinHumidity || *humidity > MaxHumidity {
		return device.ZoneReading{}, device.NewValidationError("humidity", fmt.Sprintf("must be between %.0f and %.0f", MinHumidity, MaxHumidity))
	}
	return device.ZoneReading{Temp: t, Humidity: *humidity}, nil
}

// Battery validates a battery sample. Charge outside [0, 100] is clamped, not rejected.
func (v *Validator) Battery(chargeLevel, voltage *float64, isCharging bool) (device.Battery, error) {
	if chargeLevel == nil {
		return device.Battery{}, device.NewValidationError("chargeLevel", "required")
	}
	if !finite(*chargeLevel) {
		return device.Battery{}, device.NewValidationError("chargeLevel", "must be a finite number")
	}
	if voltage == nil {
		return device.Battery{}, device.NewValidationError("voltage", "required")
	}
	if !finite(*voltage) || *voltage < 0 {
		return device.Battery{}, device.NewValidationError("voltage", "must be a non-negative number")
	}
	return device.Battery{
		ChargeLevel: device.ClampCharge(*chargeLevel),
		Voltage:     *voltage,
		IsCharging:  isCharging,
	}, nil
}

// ZoneSettings validates owner control input. Any finite target is accepted.
func (v *Validator) ZoneSettings(target *float64, actuatorOn, fanOn bool) (device.ZoneSettings, error) {
	if target == nil {
		return device.ZoneSettings{}, device.NewValidationError("targetTemp", "required")
	}
	if !finite(*target) {
		return device.ZoneSettings{}, device.NewValidationError("targetTemp", "must be a finite number")
	}
	return device.ZoneSettings{TargetTemp: *target, ActuatorOn: actuatorOn, FanOn: fanOn}, nil
}

// SafetyBounds validates a safety window
func (v *Validator) SafetyBounds(low, high *float64) (device.SafetyBounds, error) {
	l, err := temperature("low", low)
	if err != nil {
		return device.SafetyBounds{}, err
	}
	h, err := temperature("high", high)
	if err != nil {
		return device.SafetyBounds{}, err
	}
	if l > h {
		return device.SafetyBounds{}, device.NewValidationError("low", "must not exceed high")
	}
	return device.SafetyBounds{Low: l, High: h}, nil
}

// DisplayName trims a bag name. Blank means keep the current name and returns "".
func (v *Validator) DisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return "", device.NewValidationError("name", fmt.Sprintf("must be %d to %d characters", MinNameLength, MaxNameLength))
	}
	return name, nil
}

// OwnerID rejects an empty owner identity
func (v *Validator) OwnerID(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", device.NewValidationError("ownerId", "required")
	}
	return ownerID, nil
}

// DeviceCode normalizes a code and checks its format
func (v *Validator) DeviceCode(code string) (string, error) {
	code = device.NormalizeCode(code)
	if code == "" {
		return "", device.NewValidationError("deviceCode", "required")
	}
	if !device.ValidCode(code) {
		return code, device.NewValidationError("deviceCode", "must look like INF-XXXX-XXXX")
	}
	return code, nil
}

// HistoryLimit bounds a requested page size; zero or less means max
func (v *Validator) HistoryLimit(limit int) int {
	if limit <= 0 || limit > MaxHistoryRows {
		return MaxHistoryRows
	}
	return limit
}

// SentAt parses a device timestamp and checks it lies within the tolerance window of receivedAt
func (v *Validator) SentAt(raw string, receivedAt time.Time) (time.Time, error) {
	sentAt, err := timeparser.ParseDeviceTimestamp(raw)
	if err != nil {
		return time.Time{}, device.NewValidationError("sent_at", err.Error())
	}
	if !timeparser.IsWithinTolerance(sentAt, receivedAt, v.timestampToleranceMinutes) {
		return sentAt, device.NewValidationError("sent_at", fmt.Sprintf("outside tolerance window (±%d minutes)", v.timestampToleranceMinutes))
	}
	return sentAt, nil
}

func temperature(field string, value *float64) (float64, error) {
	if value == nil {
		return 0, device.NewValidationError(field, "required")
	}
	if !finite(*value) || *value < MinTemp || *value > MaxTemp {
		return 0, device.NewValidationError(field, fmt.Sprintf("must be between %.0f and %.0f", MinTemp, MaxTemp))
	}
	return *value, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
