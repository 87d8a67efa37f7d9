package mq

import (
	"time"
)

// Telemetry message kinds
const (
	KindHeartbeat = "heartbeat"
	KindHotZone   = "hot_zone"
	KindColdZone  = "cold_zone"
	KindBattery   = "battery"
)

// TelemetryMessage is a device reading delivered over the telemetry exchange.
// Which optional fields are read depends on Kind.
type TelemetryMessage struct {
	RequestID   string   `json:"request_id"`
	DeviceID    string   `json:"device_id"`
	Kind        string   `json:"kind"`
	SentAt      string   `json:"sent_at"`
	Status      *bool    `json:"status,omitempty"`
	Temp        *float64 `json:"temp,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	ChargeLevel *float64 `json:"charge_level,omitempty"`
	Voltage     *float64 `json:"voltage,omitempty"`
	IsCharging  bool     `json:"is_charging,omitempty"`
}

// TelemetryRoutingKey is the routing key a device publishes a reading of kind under
func TelemetryRoutingKey(kind string) string {
	return "device.telemetry." + kind
}

// Device event types. The routing key is "device." + type.
const (
	EventCreated       = "created"
	EventClaimed       = "claimed"
	EventAuthenticated = "authenticated"
	EventAlerts        = "alerts"

	telemetryPrefix = "telemetry."
	controlPrefix   = "control."
)

// TelemetryEvent returns the event type for an ingested reading of kind
func TelemetryEvent(kind string) string {
	return telemetryPrefix + kind
}

// ControlEvent returns the event type for an owner change to zone; an empty
// aspect means target settings
func ControlEvent(zone, aspect string) string {
	if aspect == "" {
		return controlPrefix + zone
	}
	return controlPrefix + zone + "." + aspect
}

// DeviceEvent is published after every state change
type DeviceEvent struct {
	Type       string    `json:"type"`
	DeviceID   string    `json:"device_id"`
	DeviceCode string    `json:"device_code"`
	OwnerID    *string   `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// RoutingKey returns the topic the event is published under
func (e DeviceEvent) RoutingKey() string {
	return "device." + e.Type
}
