// README: Firebase ID-token auth and role checks for gin routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolride/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"

	// DefaultRole applies to callers whose token carries no role claim.
	DefaultRole = "parent"
)

// Auth verifies the bearer token and stores the caller's uid and role claim on the context.
// Websocket upgrades may pass the token as the access_token query parameter instead.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if header == "" && c.IsWebsocket() {
			raw, ok = c.Query("access_token"), true
		}
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role := DefaultRole
		if r, ok := token.Claims["role"].(string); ok && r != "" {
			role = r
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: " + strings.Join(roles, " or ") + " role required"})
	}
}
