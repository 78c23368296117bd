package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

type AuthMiddleware struct {
	tokens TokenResolver
}

func NewAuthMiddleware(tokens TokenResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth extracts the opaque bearer token, resolves it against the token
// registry and stashes the identity on the request context. The raw token is
// kept too so handlers can thread it into the service explicitly.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Missing or invalid Authorization header",
			})
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Missing or invalid bearer token",
			})
			return
		}

		userID, err := m.tokens.Resolve(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid or revoked token. Please log in again.",
			})
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxToken, raw)

		c.Next()
	}
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func TokenFromContext(c *gin.Context) string {
	v, ok := c.Get(CtxToken)
	if !ok {
		return ""
	}
	raw, _ := v.(string)
	return raw
}
