package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DeviceAudience is the audience claim of every device token
const DeviceAudience = "device"

var ErrInvalidToken = errors.New("invalid or expired token")

// DeviceTokens issues and parses the bearer tokens devices use after authenticating
type DeviceTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDeviceTokens creates a token issuer signing with HS256
func NewDeviceTokens(secret string, ttl time.Duration, now func() time.Time) *DeviceTokens {
	if now == nil {
		now = time.Now
	}
	return &DeviceTokens{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue returns a signed token for deviceID and its expiry
func (t *DeviceTokens) Issue(deviceID uuid.UUID) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   deviceID.String(),
		Audience:  jwt.ClaimStrings{DeviceAudience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign device token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a device token and returns the device id it was issued to
func (t *DeviceTokens) Parse(raw string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(DeviceAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

func (t *DeviceTokens) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return t.secret, nil
}
