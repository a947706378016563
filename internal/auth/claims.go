package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ravikeerthi7606/edustream/internal/models"
)

// Claims are the fields the platform encodes in its access tokens.
type Claims struct {
	Subject   string      `json:"sub"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

// Expired reports whether the token's exp claim lies before now. Tokens
// without an expiry never expire client-side.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// InspectCredential decodes the claims of a bearer token without verifying its
// signature. The client has no signing key; the server remains the authority.
func InspectCredential(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("auth: empty credential")
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: parse credential: %w", err)
	}

	out := Claims{Subject: claims.Subject, Role: models.Role(claims.Role)}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
