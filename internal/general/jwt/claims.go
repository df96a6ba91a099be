package jwt

import (
	"time"

	"car-fleet/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload. Subject is the user id.
type Claims struct {
	Role user.Role `json:"role"` // USER or ADMIN
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs end-user claims issued at now.
func NewUserClaims(userID string, role user.Role, now time.Time, ttl time.Duration) *Claims {
	now = now.UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}
