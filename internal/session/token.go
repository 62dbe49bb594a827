package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client can read from an access token without the
// signing key. Tokens that are not JWTs are treated as opaque.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

func parseClaims(token string) (Claims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, false
	}
	var c Claims
	if sub, err := claims.GetSubject(); err == nil {
		c.Subject = sub
	}
	if role, ok := claims["role"].(string); ok {
		c.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, true
}

// expired reports whether token carries an exp claim in the past.
func expired(token string, now time.Time) bool {
	c, ok := parseClaims(token)
	if !ok || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// ttl returns the remaining lifetime of token, or 0 when unknown.
func ttl(token string, now time.Time) time.Duration {
	c, ok := parseClaims(token)
	if !ok || c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
