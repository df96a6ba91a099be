package jwt

import (
	"net/http"

	"car-fleet/internal/domain/user"

	"github.com/gin-gonic/gin"
)

const claimsKey = "jwtClaims"

// Middleware validates the bearer token, enforces allowedRoles and stores the claims on the gin context.
func Middleware(mgr *Manager, allowedRoles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := FromAuthorization(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := mgr.ParseAndValidate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// enforce role-based access control (RBAC)
		if err := RoleAllowed(claims, allowedRoles...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Middleware.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
