// Package middleware carries the cross-cutting gin middleware: identity,
// request logging and CORS.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ThreatCanvas/internal/config"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ActorKey is the gin context key under which the authenticated actor name
// is stored.  Merge operations record it as merged_by.
const ActorKey = "actor"

// AnonymousActor is recorded when anonymous access is allowed.
const AnonymousActor = "system"

// APIKeyAuth resolves the caller's identity from the X-API-Key header (or
// an Authorization bearer token carrying the same key).
func APIKeyAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			if bearer := c.GetHeader("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
				key = strings.TrimPrefix(bearer, "Bearer ")
			}
		}

		if actor, ok := cfg.APIKeys[key]; ok && key != "" {
			c.Set(ActorKey, actor)
			c.Next()
			return
		}
		if cfg.AllowAnonymous {
			c.Set(ActorKey, AnonymousActor)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"code": apperrors.ErrCodeUnauthorized, "message": "invalid or missing API key"},
		})
	}
}

// Actor returns the authenticated actor name for the request.
func Actor(c *gin.Context) string {
	if actor, ok := c.Get(ActorKey); ok {
		if s, ok := actor.(string); ok {
			return s
		}
	}
	return AnonymousActor
}
