package validator_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/validator"
)

const testTimestampToleranceMinutes = 5

func f(v float64) *float64 { return &v }

func TestZoneReading_Valid(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	r, err := v.ZoneReading(f(58.5), f(40))
	if err != nil {
		t.Fatalf("Expected valid reading, got %v", err)
	}
	if r.Temp != 58.5 || r.Humidity != 40 {
		t.Errorf("unexpected reading %+v", r)
	}
}

func TestZoneReading_Rejects(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	cases := []struct {
		name     string
		temp     *float64
		humidity *float64
		field    string
	}{
		{"missing temp", nil, f(40), "temp"},
		{"missing humidity", f(20), nil, "humidity"},
		{"too hot", f(151), f(40), "temp"},
		{"too cold", f(-51), f(40), "temp"},
		{"NaN", f(math.NaN()), f(40), "temp"},
		{"infinite", f(math.Inf(1)), f(40), "temp"},
		{"humidity over 100", f(20), f(101), "humidity"},
		{"negative humidity", f(20), f(-1), "humidity"},
	}

	for _, tc := range cases {
		_, err := v.ZoneReading(tc.temp, tc.humidity)
		var verr *device.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			continue
		}
		if verr.Field != tc.field {
			t.Errorf("%s: expected field %s, got %s", tc.name, tc.field, verr.Field)
		}
	}
}

func TestBattery_ClampsCharge(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	high, err := v.Battery(f(150), f(12.6), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if high.ChargeLevel != 100 {
		t.Errorf("Expected charge clamped to 100, got %f", high.ChargeLevel)
	}

	low, err := v.Battery(f(-10), f(11.1), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low.ChargeLevel != 0 || !low.IsCharging {
		t.Errorf("Expected charge clamped to 0 while charging, got %+v", low)
	}
}

func TestBattery_RequiresFields(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	if _, err := v.Battery(nil, f(12), false); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected validation error for missing charge, got %v", err)
	}
	if _, err := v.Battery(f(50), nil, false); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected validation error for missing voltage, got %v", err)
	}
	if _, err := v.Battery(f(50), f(-1), false); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected validation error for negative voltage, got %v", err)
	}
}

func TestZoneSettings_AcceptsAnyFiniteTarget(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	s, err := v.ZoneSettings(f(500), true, false)
	if err != nil {
		t.Fatalf("Expected out-of-range target to be accepted, got %v", err)
	}
	if s.TargetTemp != 500 || !s.ActuatorOn || s.FanOn {
		t.Errorf("unexpected settings %+v", s)
	}

	if _, err := v.ZoneSettings(f(math.NaN()), true, true); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected NaN target to be rejected, got %v", err)
	}
	if _, err := v.ZoneSettings(nil, true, true); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected missing target to be rejected, got %v", err)
	}
}

func TestSafetyBounds(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	b, err := v.SafetyBounds(f(0), f(6))
	if err != nil || b.Low != 0 || b.High != 6 {
		t.Errorf("Expected bounds 0..6, got %+v (%v)", b, err)
	}
	if _, err := v.SafetyBounds(f(10), f(5)); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected inverted bounds to be rejected, got %v", err)
	}
	if _, err := v.SafetyBounds(f(5), f(5)); err != nil {
		t.Errorf("Expected equal bounds to be accepted, got %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	if name, err := v.DisplayName("  Cold Box "); err != nil || name != "Cold Box" {
		t.Errorf("Expected 'Cold Box', got %q (%v)", name, err)
	}
	if name, err := v.DisplayName("   "); err != nil || name != "" {
		t.Errorf("Expected blank name to pass through empty, got %q (%v)", name, err)
	}
	if _, err := v.DisplayName("X"); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected one-letter name to be rejected, got %v", err)
	}
	if _, err := v.DisplayName(strings.Repeat("a", 51)); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected 51-char name to be rejected, got %v", err)
	}
}

func TestDeviceCode(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	code, err := v.DeviceCode(" abc-1111-2222 ")
	if err != nil || code != "ABC-1111-2222" {
		t.Errorf("Expected normalized code, got %q (%v)", code, err)
	}
	if _, err := v.DeviceCode("not-a-code"); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected malformed code to be rejected, got %v", err)
	}
	if _, err := v.DeviceCode(""); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected empty code to be rejected, got %v", err)
	}
}

func TestHistoryLimit(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	if got := v.HistoryLimit(0); got != validator.MaxHistoryRows {
		t.Errorf("Expected default limit, got %d", got)
	}
	if got := v.HistoryLimit(25); got != 25 {
		t.Errorf("Expected 25, got %d", got)
	}
	if got := v.HistoryLimit(5000); got != validator.MaxHistoryRows {
		t.Errorf("Expected cap, got %d", got)
	}
}

func TestSentAt_Tolerance(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)
	receivedAt := time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC)

	sentAt, err := v.SentAt("2025-12-29T10:30:00Z", receivedAt)
	if err != nil {
		t.Fatalf("Expected valid timestamp, got %v", err)
	}
	if !sentAt.Equal(time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", sentAt)
	}

	if _, err := v.SentAt("2025-12-29T10:00:00Z", receivedAt); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected stale timestamp to be rejected, got %v", err)
	}
	if _, err := v.SentAt("yesterday", receivedAt); !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected unparseable timestamp to be rejected, got %v", err)
	}
}
