package jwt

import (
	"time"

	"ride-hail-sim/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: subject is the user id, role drives RBAC.
type Claims struct {
	Role user.Role `json:"role"`
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims builds claims for a rider, driver or admin.
func NewUserClaims(userID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }
