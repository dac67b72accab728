package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	obscontext "github.com/smallbiznis/agentdesk/internal/observability/context"
)

// HeaderActorID carries the identity asserted by the upstream gateway.
const HeaderActorID = "X-Actor-ID"

const (
	contextActorIDKey   = "actor_id"
	contextActorRoleKey = "actor_role"
)

// ActorContext resolves the caller's role and stamps it on the request context.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID == "" || actorID == authorization.SystemActor {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role, err := s.authzSvc.RoleOf(c.Request.Context(), actorID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorIDKey, actorID)
		c.Set(contextActorRoleKey, role)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), role, actorID))
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorIDFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actorID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorIDFromGin(c *gin.Context) (string, bool) {
	actorID := strings.TrimSpace(c.GetString(contextActorIDKey))
	return actorID, actorID != ""
}
