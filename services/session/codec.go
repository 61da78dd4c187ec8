package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/zoneauth/services"
)

// Codec signs and verifies session tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec creates an HS256 codec. Tokens must carry iss == issuer.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign serializes claims.
func (c *Codec) Sign(claims *Claims) (string, error) {
	if claims.ExpiresAt == nil {
		return "", errors.New("session claims have no expiry")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry. Every failure is reported
// as services.ErrInvalidSession.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, services.ErrInvalidSession.Wrap(err)
	}
	if !token.Valid {
		return nil, services.ErrInvalidSession
	}
	if claims.UserID == "" {
		return nil, services.ErrInvalidSession.Wrap(errors.New("token has no user id"))
	}
	return claims, nil
}
