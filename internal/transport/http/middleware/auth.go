package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/usecase"
)

// Context keys set by Auth.
const (
	CtxDomain  = "domain"
	CtxIsAdmin = "is_admin"
)

// exemptPaths skip auth enforcement. Identity still attaches best
// effort so /health and /events/stream can scope their output when a
// token is present.
var exemptPaths = map[string]bool{
	"/health":        true,
	"/events/stream": true,
}

// Resolver is the slice of the token resolver Auth needs.
type Resolver interface {
	Resolve(ctx context.Context, rawToken, domainOverride string) (usecase.Identity, error)
}

// Auth resolves the caller's token to a domain identity and stores it
// in the gin context. Tokens arrive as Authorization: Bearer, x-api-key
// or ?token=.
func Auth(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		exempt := c.Request.Method == http.MethodOptions || exemptPaths[c.FullPath()]

		token := extractToken(c)
		if token == "" {
			if exempt {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), token, c.Query("domain"))
		if err != nil {
			if exempt {
				c.Next()
				return
			}
			if errors.Is(err, domain.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(CtxDomain, id.Domain)
		c.Set(CtxIsAdmin, id.Admin)
		c.Next()
	}
}

// RequireAdmin guards the admin surface. It runs after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin token required"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	return c.Query("token")
}
