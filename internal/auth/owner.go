package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OwnerVerifier checks end-user tokens minted by the identity provider.
// The provider signs with HS256; the subject claim is the owner id.
type OwnerVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewOwnerVerifier creates a verifier. An empty audience disables the audience check.
func NewOwnerVerifier(secret, audience string, now func() time.Time) *OwnerVerifier {
	if now == nil {
		now = time.Now
	}
	return &OwnerVerifier{secret: []byte(secret), audience: audience, now: now}
}

// Verify returns the owner id carried by raw
func (v *OwnerVerifier) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// device tokens share the header format but must never act as owners
	for _, aud := range claims.Audience {
		if aud == DeviceAudience {
			return "", fmt.Errorf("%w: device token", ErrInvalidToken)
		}
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
