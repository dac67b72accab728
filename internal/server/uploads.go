package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agentdesk/internal/artifact"
)

// CreateUpload presigns a direct upload. Agents may only upload request
// inputs; the admin surface defaults to result documents.
func (s *Server) CreateUpload(c *gin.Context) {
	var req artifact.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actorID, _ := actorIDFromGin(c)
	req.OwnerID = actorID

	admin := strings.HasPrefix(c.FullPath(), "/admin")
	switch {
	case req.Purpose == "" && admin:
		req.Purpose = artifact.PurposeResult
	case req.Purpose == "":
		req.Purpose = artifact.PurposeInput
	case !admin && req.Purpose != artifact.PurposeInput:
		AbortWithError(c, newValidationError("purpose", "invalid_purpose", "agents may only upload request inputs"))
		return
	}

	upload, err := s.artifactSvc.PresignUpload(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": upload})
}
