package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/septivank/smartbag-service/tools/timeparser"
	"go.uber.org/zap"
)

// Pinger checks the backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the handlers call into
type Services struct {
	Registry  *service.Registry
	Claims    *service.Claims
	Telemetry *service.Telemetry
	Control   *service.Control
	Alerts    *service.Alerts
}

// Handler holds the HTTP handlers
type Handler struct {
	svc    Services
	store  Pinger
	logger *zap.Logger
}

type authRequest struct {
	DeviceCode   string `json:"deviceCode"`
	DeviceSecret string `json:"deviceSecret"`
}

type heartbeatRequest struct {
	Status *bool `json:"status"`
}

// Health reports liveness and store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		sendError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	sendSuccess(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

// VerifyClaim handles GET /claims/verify?deviceCode=
func (h *Handler) VerifyClaim(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Claims.Verify(r.Context(), r.URL.Query().Get("deviceCode"))
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", result)
}

// Claim handles POST /claims
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var req service.ClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	p, _ := principalFrom(r.Context())
	d, err := h.svc.Claims.Claim(r.Context(), p.OwnerID, req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "device claimed", d)
}

// AuthenticateDevice handles POST /devices/auth
func (h *Handler) AuthenticateDevice(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.svc.Registry.Authenticate(r.Context(), req.DeviceCode, req.DeviceSecret)
	if err != nil {
		// unknown codes and wrong secrets look the same to the caller
		if statusFor(err) == http.StatusNotFound {
			err = device.ErrInvalidCredentials
		}
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "authenticated", session)
}

// ListDevices handles GET /devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	devices, err := h.svc.Registry.ListByOwner(r.Context(), p.OwnerID)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", devices)
}

// Summary handles GET /devices/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	summary, err := h.svc.Registry.Summary(r.Context(), p.OwnerID)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", summary)
}

// GetDevice handles GET /devices/{id}
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, http.StatusOK, "", deviceFrom(r.Context()))
}

// GetAlerts handles GET /devices/{id}/alerts
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	d := deviceFrom(r.Context())
	alerts, err := h.svc.Alerts.Get(r.Context(), d.ID)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", alerts)
}

// GetHistory handles GET /devices/{id}/history?component=&since=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	component, err := device.ParseComponent(q.Get("component"))
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		if since, err = timeparser.ParseDeviceTimestamp(raw); err != nil {
			sendServiceError(w, r, h.logger, badPathParam("since", raw))
			return
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			sendServiceError(w, r, h.logger, badPathParam("limit", raw))
			return
		}
	}

	history, err := h.svc.Telemetry.History(r.Context(), deviceFrom(r.Context()).ID, component, since, limit)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", history)
}

// SetZoneSettings handles PUT /devices/{id}/zones/{zone}/settings
func (h *Handler) SetZoneSettings(w http.ResponseWriter, r *http.Request) {
	zone, err := device.ParseZone(chi.URLParam(r, "zone"))
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	var req service.ZoneSettingsInput
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	d, err := h.svc.Control.SetZoneTarget(r.Context(), deviceFrom(r.Context()).ID, zone, req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "zone settings updated", d)
}

// SetSafetyBounds handles PUT /devices/{id}/zones/{zone}/safety
func (h *Handler) SetSafetyBounds(w http.ResponseWriter, r *http.Request) {
	zone, err := device.ParseZone(chi.URLParam(r, "zone"))
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	var req service.SafetyBoundsInput
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	d, err := h.svc.Control.SetSafetyBounds(r.Context(), deviceFrom(r.Context()).ID, zone, req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "safety bounds updated", d)
}

// Heartbeat handles POST /devices/{id}/heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	if req.Status == nil {
		sendServiceError(w, r, h.logger, device.NewValidationError("status", "required"))
		return
	}

	d, err := h.svc.Telemetry.Heartbeat(r.Context(), deviceFrom(r.Context()).ID, *req.Status)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", d)
}

// RecordZoneReading handles POST /devices/{id}/zones/{zone}/reading
func (h *Handler) RecordZoneReading(w http.ResponseWriter, r *http.Request) {
	zone, err := device.ParseZone(chi.URLParam(r, "zone"))
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	var req service.ZoneReadingInput
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	d, err := h.svc.Telemetry.RecordZoneReading(r.Context(), deviceFrom(r.Context()).ID, zone, req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", d)
}

// RecordBattery handles POST /devices/{id}/battery
func (h *Handler) RecordBattery(w http.ResponseWriter, r *http.Request) {
	var req service.BatteryInput
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	d, err := h.svc.Telemetry.RecordBattery(r.Context(), deviceFrom(r.Context()).ID, req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", d)
}

// CreateDevice handles POST /admin/devices
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req service.CreateParams
	if err := decodeBody(w, r, &req); err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}

	created, err := h.svc.Registry.Create(r.Context(), req)
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "device created, store the secret now", created)
}

// ListAllDevices handles GET /admin/devices
func (h *Handler) ListAllDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Registry.ListAll(r.Context())
	if err != nil {
		sendServiceError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", devices)
}
