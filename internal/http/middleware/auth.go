// README: Firebase ID-token auth middleware; resolves the calling actor for handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"convoy/internal/infra"
	"convoy/internal/types"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"

	// RoleClaim is the custom claim carrying the caller's role.
	RoleClaim = "role"
)

// Auth rejects requests without a valid "Bearer <Firebase ID token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role, _ := token.Claims[RoleClaim].(string)
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, string(types.ParseRole(role)))
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole defaults to client when the token carried no role claim.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// Caller is the actor handlers pass into the services.
func Caller(c *gin.Context) types.Actor {
	return types.Actor{UserID: CallerUID(c), Role: types.Role(CallerRole(c))}
}
