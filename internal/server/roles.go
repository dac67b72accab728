package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type assignRoleRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

func (s *Server) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	grantedBy, _ := actorIDFromGin(c)
	actorID := strings.TrimSpace(req.ActorID)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if err := s.authzSvc.AssignRole(c.Request.Context(), actorID, role, grantedBy); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor_id": actorID, "role": role}})
}

func (s *Server) GetRole(c *gin.Context) {
	actorID := strings.TrimSpace(c.Param("actor_id"))
	role, err := s.authzSvc.RoleOf(c.Request.Context(), actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor_id": actorID, "role": role}})
}
