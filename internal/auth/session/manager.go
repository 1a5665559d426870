package session

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/trailpay/internal/auth/domain"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "bearer "
	actorContextKey     = "auth.actor"
)

type actorKey struct{}

// ReadToken extracts the bearer token from the Authorization header.
func ReadToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader(headerAuthorization))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// SetActor stores the actor on both the gin and request contexts.
func SetActor(c *gin.Context, actor *domain.Actor) {
	c.Set(actorContextKey, actor)
	c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
}

func ActorFromGin(c *gin.Context) (*domain.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return nil, false
	}
	actor, ok := value.(*domain.Actor)
	return actor, ok && actor != nil
}

func WithActor(ctx context.Context, actor *domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (*domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(*domain.Actor)
	return actor, ok && actor != nil
}
