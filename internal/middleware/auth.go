package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/pkg"
	"github.com/simp-lee/attendance/internal/security"
)

const (
	authorizationHeader = "Authorization"
	callerContextKey    = "caller"
	claimsContextKey    = "claims"
)

// Caller resolves the caller context from the Authorization header and
// stores it for handlers. It never rejects a request: a missing or invalid
// token simply yields an unprivileged caller.
func Caller(insp *security.Inspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerContextKey, insp.Caller(c.GetHeader(authorizationHeader)))
		c.Next()
	}
}

// RequireRole aborts the request unless it carries a valid access token with
// one of roles. Verified claims are stored for GetClaims.
func RequireRole(insp *security.Inspector, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := insp.RequireRole(c.GetHeader(authorizationHeader), roles...)
		if err != nil {
			pkg.Error(c, err)
			c.Abort()
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// GetCaller returns the caller stored by Caller, or an unprivileged caller.
func GetCaller(c *gin.Context) domain.Caller {
	if v, ok := c.Get(callerContextKey); ok {
		if caller, ok := v.(domain.Caller); ok {
			return caller
		}
	}
	return domain.Caller{}
}

// GetClaims returns the claims stored by RequireRole.
func GetClaims(c *gin.Context) (security.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(security.Claims)
	return claims, ok
}
