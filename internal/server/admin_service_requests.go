package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
)

type beginProcessingRequest struct {
	Note string `json:"note"`
}

type completeRequest struct {
	ResultURL string `json:"result_url"`
	Note      string `json:"note"`
}

type failRequest struct {
	ShouldRefund bool   `json:"should_refund"`
	Note         string `json:"note"`
	Deduction    int64  `json:"deduction"`
}

type attachArtifactRequest struct {
	URL string `json:"url" binding:"required"`
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	// Chunked requests report ContentLength -1 even when nothing follows.
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) BeginProcessing(c *gin.Context) {
	var req beginProcessingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.requestSvc.BeginProcessing(c.Request.Context(), servicerequestdomain.BeginProcessingRequest{
		ID:   c.Param("id"),
		Note: req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CompleteServiceRequest(c *gin.Context) {
	var req completeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.requestSvc.Complete(c.Request.Context(), servicerequestdomain.CompleteRequest{
		ID:        c.Param("id"),
		ResultURL: req.ResultURL,
		Note:      req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) FailServiceRequest(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.requestSvc.Fail(c.Request.Context(), servicerequestdomain.FailRequest{
		ID:           c.Param("id"),
		ShouldRefund: req.ShouldRefund,
		Note:         req.Note,
		Deduction:    req.Deduction,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AttachArtifact(c *gin.Context) {
	var req attachArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.requestSvc.AttachArtifact(c.Request.Context(), servicerequestdomain.AttachArtifactRequest{
		ID:   c.Param("id"),
		Name: c.Param("name"),
		URL:  req.URL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
