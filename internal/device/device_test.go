package device_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/septivank/smartbag-service/internal/device"
)

func TestNew_DualZoneHasColdZone(t *testing.T) {
	d, err := device.New(device.NewParams{
		Code:       "INF-A7B3-9C2D",
		SecretHash: "hash",
		BagType:    device.BagTypeDualZone,
		Now:        time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.ColdZone == nil {
		t.Fatal("Expected dual-zone device to have a cold zone")
	}
	if d.IsClaimed || d.OwnerID != nil || d.ClaimedAt != nil {
		t.Error("Expected new device to be unclaimed")
	}
	if d.Name != "Smart Bag 9C2D" {
		t.Errorf("Expected default name 'Smart Bag 9C2D', got '%s'", d.Name)
	}
	if d.HardwareVersion != device.DefaultHardware || d.FirmwareVersion != device.DefaultFirmware {
		t.Errorf("Expected default versions, got %s/%s", d.HardwareVersion, d.FirmwareVersion)
	}
	if d.Battery.ChargeLevel != 100 {
		t.Errorf("Expected full battery, got %f", d.Battery.ChargeLevel)
	}
}

func TestNew_HeatingOnlyHasNoColdZone(t *testing.T) {
	d, err := device.New(device.NewParams{
		Code:       "INF-0000-0001",
		SecretHash: "hash",
		BagType:    device.BagTypeHeatingOnly,
		Now:        time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ColdZone != nil {
		t.Error("Expected heating-only device to have no cold zone")
	}

	body, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(body), "coldZone") {
		t.Errorf("Expected coldZone to be omitted, got %s", body)
	}
	if strings.Contains(string(body), "hash") {
		t.Errorf("Expected secret hash to never be serialized, got %s", body)
	}
}

func TestNew_RejectsUnknownBagType(t *testing.T) {
	_, err := device.New(device.NewParams{Code: "INF-0000-0001", SecretHash: "h", BagType: "triple-zone"})
	if !errors.Is(err, device.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestClampCharge(t *testing.T) {
	cases := map[float64]float64{150: 100, -10: 0, 55.5: 55.5, 0: 0, 100: 100}
	for in, want := range cases {
		if got := device.ClampCharge(in); got != want {
			t.Errorf("ClampCharge(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGenerateCode_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := device.GenerateCode("inf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !device.ValidCode(code) {
			t.Errorf("Generated code %q does not match format", code)
		}
		if !strings.HasPrefix(code, "INF-") {
			t.Errorf("Expected INF- prefix, got %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Errorf("Expected generated codes to be mostly distinct, got %d unique of 50", len(seen))
	}
}

func TestGenerateSecret_Length(t *testing.T) {
	secret, err := device.GenerateSecret()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secret) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(secret))
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := device.NormalizeCode("  abc-1111-22ff "); got != "ABC-1111-22FF" {
		t.Errorf("Expected 'ABC-1111-22FF', got '%s'", got)
	}
	if device.ValidCode("ABC-1111") {
		t.Error("Expected truncated code to be invalid")
	}
}

func TestValidationError_Is(t *testing.T) {
	err := device.NewValidationError("temp", "required")
	if !errors.Is(err, device.ErrValidation) {
		t.Error("Expected ValidationError to match ErrValidation")
	}
	if err.Error() != "invalid temp: required" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestClone_IsDeep(t *testing.T) {
	d, _ := device.New(device.NewParams{Code: "INF-0000-0002", SecretHash: "h", BagType: device.BagTypeDualZone, Now: time.Now()})
	owner := "u1"
	d.OwnerID = &owner

	c := d.Clone()
	*c.OwnerID = "u2"
	c.ColdZone.CurrentTemp = -5

	if *d.OwnerID != "u1" {
		t.Error("Expected clone owner change not to leak")
	}
	if d.ColdZone.CurrentTemp == -5 {
		t.Error("Expected clone cold zone change not to leak")
	}
}
