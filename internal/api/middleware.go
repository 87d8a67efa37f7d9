package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/septivank/smartbag-service/internal/device"
	"go.uber.org/zap"
)

// OwnerVerifier resolves an identity-provider token to an owner id
type OwnerVerifier interface {
	Verify(raw string) (string, error)
}

// DeviceTokenParser resolves a device token to the device id it was issued to
type DeviceTokenParser interface {
	Parse(raw string) (uuid.UUID, error)
}

// DeviceFinder loads a device for access checks
type DeviceFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*device.Device, error)
}

// PrincipalKind tells owners and devices apart
type PrincipalKind int

const (
	KindOwner PrincipalKind = iota + 1
	KindDevice
)

// Principal is the authenticated caller
type Principal struct {
	Kind     PrincipalKind
	OwnerID  string
	DeviceID uuid.UUID
}

type ctxKey int

const (
	principalKey ctxKey = iota
	deviceKey
)

func principalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func deviceFrom(ctx context.Context) *device.Device {
	d, _ := ctx.Value(deviceKey).(*device.Device)
	return d
}

type authMiddleware struct {
	owners  OwnerVerifier
	devices DeviceTokenParser
	finder  DeviceFinder
	logger  *zap.Logger
}

// authenticate accepts either a device token or an owner token in the Authorization header
func (m *authMiddleware) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			sendError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		var p Principal
		if id, err := m.devices.Parse(raw); err == nil {
			p = Principal{Kind: KindDevice, DeviceID: id}
		} else if owner, err := m.owners.Verify(raw); err == nil {
			p = Principal{Kind: KindOwner, OwnerID: owner}
		} else {
			sendError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// allow lets only the given principal kinds through
func allow(kinds ...PrincipalKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if ok {
				for _, k := range kinds {
					if p.Kind == k {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			sendError(w, http.StatusForbidden, "not allowed for this caller")
		})
	}
}

// deviceScope resolves {id} and checks the caller may act on it. A device may only act on
// itself; an owner only on devices they claimed. Foreign devices look like missing ones.
func (m *authMiddleware) deviceScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "id")
		id, err := uuid.Parse(raw)
		if err != nil {
			sendServiceError(w, r, m.logger, badPathParam("id", raw))
			return
		}

		p, _ := principalFrom(r.Context())
		if p.Kind == KindDevice && p.DeviceID != id {
			sendError(w, http.StatusForbidden, "device token does not match device")
			return
		}

		d, err := m.finder.FindByID(r.Context(), id)
		if err != nil {
			sendServiceError(w, r, m.logger, err)
			return
		}
		if p.Kind == KindOwner && !d.OwnedBy(p.OwnerID) {
			sendError(w, http.StatusNotFound, device.ErrNotFound.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deviceKey, d)))
	})
}

// adminOnly checks the X-Admin-Key header in constant time
func adminOnly(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				sendError(w, http.StatusUnauthorized, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request with zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_ip", r.RemoteAddr),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
