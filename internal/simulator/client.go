package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
)

// APIError is a non-2xx reply from the service
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Session is the result of a device login
type Session struct {
	Device    device.Device `json:"device"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// Client talks to the HTTP surface as a device
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	deviceID uuid.UUID
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Authenticate logs in with the device credentials and keeps the token for later calls
func (c *Client) Authenticate(ctx context.Context, code, secret string) (*Session, error) {
	var s Session
	body := map[string]string{"deviceCode": code, "deviceSecret": secret}
	if err := c.do(ctx, http.MethodPost, "/api/v1/devices/auth", body, &s); err != nil {
		return nil, err
	}
	c.token = s.Token
	c.deviceID = s.Device.ID
	return &s, nil
}

// DeviceID is the id of the authenticated device
func (c *Client) DeviceID() uuid.UUID {
	return c.deviceID
}

// Device fetches the device's current record, including owner settings
func (c *Client) Device(ctx context.Context) (*device.Device, error) {
	var d device.Device
	if err := c.do(ctx, http.MethodGet, c.devicePath(""), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) Heartbeat(ctx context.Context, online bool) error {
	return c.do(ctx, http.MethodPost, c.devicePath("/heartbeat"), map[string]bool{"status": online}, nil)
}

func (c *Client) ZoneReading(ctx context.Context, zone device.Zone, temp, humidity float64) error {
	body := map[string]float64{"temp": temp, "humidity": humidity}
	return c.do(ctx, http.MethodPost, c.devicePath("/zones/"+string(zone)+"/reading"), body, nil)
}

func (c *Client) Battery(ctx context.Context, charge, voltage float64, charging bool) error {
	body := map[string]any{"chargeLevel": charge, "voltage": voltage, "isCharging": charging}
	return c.do(ctx, http.MethodPost, c.devicePath("/battery"), body, nil)
}

func (c *Client) devicePath(suffix string) string {
	return "/api/v1/devices/" + c.deviceID.String() + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: failed to decode response (status %d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: failed to decode data: %w", method, path, err)
		}
	}
	return nil
}
