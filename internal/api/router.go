package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig holds HTTP surface settings
type RouterConfig struct {
	AdminAPIKey        string
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// NewRouter builds the chi router. Admin routes are only mounted when an admin key is set.
func NewRouter(
	cfg RouterConfig,
	svc Services,
	store Pinger,
	owners OwnerVerifier,
	devices DeviceTokenParser,
	logger *zap.Logger,
) http.Handler {
	h := &Handler{svc: svc, store: store, logger: logger}
	m := &authMiddleware{owners: owners, devices: devices, finder: svc.Registry, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/devices/auth", h.AuthenticateDevice)

		r.Group(func(r chi.Router) {
			r.Use(m.authenticate)

			owner := allow(KindOwner)
			dev := allow(KindDevice)

			r.With(owner).Get("/claims/verify", h.VerifyClaim)
			r.With(owner).Post("/claims", h.Claim)
			r.With(owner).Get("/devices", h.ListDevices)
			r.With(owner).Get("/devices/summary", h.Summary)

			r.Route("/devices/{id}", func(r chi.Router) {
				r.Use(allow(KindOwner, KindDevice))
				r.Use(m.deviceScope)

				r.Get("/", h.GetDevice)
				r.Get("/alerts", h.GetAlerts)
				r.With(owner).Get("/history", h.GetHistory)
				r.With(owner).Put("/zones/{zone}/settings", h.SetZoneSettings)
				r.With(owner).Put("/zones/{zone}/safety", h.SetSafetyBounds)
				r.With(dev).Post("/heartbeat", h.Heartbeat)
				r.With(dev).Post("/zones/{zone}/reading", h.RecordZoneReading)
				r.With(dev).Post("/battery", h.RecordBattery)
			})
		})

		if cfg.AdminAPIKey != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(adminOnly(cfg.AdminAPIKey))
				r.Post("/devices", h.CreateDevice)
				r.Get("/devices", h.ListAllDevices)
			})
		}
	})

	return r
}
