package alert

import (
	"fmt"
	"time"

	"github.com/septivank/smartbag-service/internal/device"
)

// Type identifies the condition an alert reports
type Type string

const (
	TypeTemperatureOutOfRange Type = "temperature_out_of_range"
	TypeLowBattery            Type = "low_battery"
	TypeDeviceUnresponsive    Type = "device_unresponsive"
)

// Alert is a condition derived from current device state. It is never stored.
type Alert struct {
	Type      Type        `json:"type"`
	Zone      device.Zone `json:"zone,omitempty"`
	Message   string      `json:"message"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
}

// Detector derives alerts with configurable thresholds
type Detector struct {
	lowBatteryPercent float64
	unresponsiveAfter time.Duration
}

// NewDetector creates a new detector with the specified thresholds
func NewDetector(lowBatteryPercent float64, unresponsiveAfter time.Duration) *Detector {
	return &Detector{
		lowBatteryPercent: lowBatteryPercent,
		unresponsiveAfter: unresponsiveAfter,
	}
}

// Evaluate returns the alerts active for d at now, ordered hot, cold, battery, connectivity.
// The result is never nil.
func (d *Detector) Evaluate(dev *device.Device, now time.Time) []Alert {
	alerts := []Alert{}

	if a, ok := zoneAlert(device.ZoneHot, dev.HotZone.CurrentTemp, dev.HotZone.Safety); ok {
		alerts = append(alerts, a)
	}

	if dev.BagType.HasColdZone() && dev.ColdZone != nil {
		if a, ok := zoneAlert(device.ZoneCold, dev.ColdZone.CurrentTemp, dev.ColdZone.Safety); ok {
			alerts = append(alerts, a)
		}
	}

	if dev.Battery.ChargeLevel <= d.lowBatteryPercent {
		alerts = append(alerts, Alert{
			Type:      TypeLowBattery,
			Message:   fmt.Sprintf("battery at %.0f%% (threshold %.0f%%)", dev.Battery.ChargeLevel, d.lowBatteryPercent),
			Value:     dev.Battery.ChargeLevel,
			Threshold: d.lowBatteryPercent,
		})
	}

	if d.unresponsive(dev, now) {
		a := Alert{
			Type:      TypeDeviceUnresponsive,
			Message:   "device has never reported",
			Threshold: d.unresponsiveAfter.Seconds(),
		}
		// Value is the unix time of lastSeen
		if dev.LastSeen != nil {
			a.Value = float64(dev.LastSeen.Unix())
			a.Message = fmt.Sprintf("device offline, last seen at %s", dev.LastSeen.UTC().Format(time.RFC3339))
		}
		alerts = append(alerts, a)
	}

	return alerts
}

func (d *Detector) unresponsive(dev *device.Device, now time.Time) bool {
	if dev.Status {
		return false
	}
	if dev.LastSeen == nil {
		return true
	}
	return now.Sub(*dev.LastSeen) > d.unresponsiveAfter
}

func zoneAlert(zone device.Zone, temp float64, bounds device.SafetyBounds) (Alert, bool) {
	if bounds.Contains(temp) {
		return Alert{}, false
	}

	threshold := bounds.High
	side := "above"
	if temp < bounds.Low {
		threshold = bounds.Low
		side = "below"
	}

	return Alert{
		Type:      TypeTemperatureOutOfRange,
		Zone:      zone,
		Message:   fmt.Sprintf("%s zone at %.1f°C is %s the safe limit of %.1f°C", zone, temp, side, threshold),
		Value:     temp,
		Threshold: threshold,
	}, true
}
