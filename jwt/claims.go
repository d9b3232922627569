package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by Inspect for opaque (non-JWT) bearer tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims holds the registered claims the client cares about. Zero times mean the
// claim was absent.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ExpiresWithin reports whether the token expires before now+d. Tokens without an
// exp claim never report true.
func (c *Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt)
}

// Expired reports whether exp is at or before now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresWithin(now, 0)
}

var parser = jwt.NewParser()

// Inspect decodes token's claims without verifying its signature.
func Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrNotJWT
	}

	var registered jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(token, &registered); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}

	out := &Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		out.ExpiresAt = registered.ExpiresAt.Time
	}
	if registered.IssuedAt != nil {
		out.IssuedAt = registered.IssuedAt.Time
	}
	return out, nil
}
