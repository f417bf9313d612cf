package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// contextKey is a private type for context keys set by this package.
// Using a custom type prevents collisions.
type contextKey string

const (
	loggerCtxKey     = contextKey("logger")
	actorIDKey       = contextKey("actorID")
	actorRoleKey     = contextKey("actorRole")
	correlationIDKey = contextKey("correlationID")
)

// GetActorFromContext retrieves the authenticated actor id and role from the
// request context. The boolean reports whether an actor was authenticated.
func GetActorFromContext(c *gin.Context) (actorID string, role string, ok bool) {
	idVal := c.Request.Context().Value(actorIDKey)
	if idVal == nil {
		return "", "", false
	}
	actorID, ok = idVal.(string)
	if !ok || actorID == "" {
		return "", "", false
	}
	if roleVal := c.Request.Context().Value(actorRoleKey); roleVal != nil {
		role, _ = roleVal.(string)
	}
	return actorID, role, true
}

// CorrelationIDFromCtx returns the correlation id attached by the logging
// middleware, or empty when called outside a request.
func CorrelationIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
