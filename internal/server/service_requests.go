package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/agentdesk/internal/observability/tracing"
	"github.com/smallbiznis/agentdesk/internal/receipt"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
)

type artifactInput struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

type createServiceRequestRequest struct {
	ServiceCode string            `json:"service_code" binding:"required"`
	FormData    map[string]any    `json:"form_data"`
	Inputs      map[string]string `json:"inputs"`
	QuotedFee   *int64            `json:"quoted_fee"`
	Artifacts   []artifactInput   `json:"artifacts" binding:"dive"`
}

type listServiceRequestsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	OwnerID   string `form:"owner_id"`
	Status    string `form:"status"`
	Kind      string `form:"kind"`
}

func (s *Server) CreateServiceRequest(c *gin.Context) {
	var req createServiceRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set(obstracing.ServiceCodeKey, strings.TrimSpace(req.ServiceCode))

	artifacts := make([]servicerequestdomain.ArtifactInput, 0, len(req.Artifacts))
	for _, a := range req.Artifacts {
		artifacts = append(artifacts, servicerequestdomain.ArtifactInput{Name: a.Name, URL: a.URL})
	}

	created, err := s.requestSvc.Create(c.Request.Context(), servicerequestdomain.CreateRequest{
		ServiceCode: req.ServiceCode,
		FormData:    req.FormData,
		Inputs:      req.Inputs,
		QuotedFee:   req.QuotedFee,
		Artifacts:   artifacts,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) GetServiceRequest(c *gin.Context) {
	item, err := s.requestSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListServiceRequests(c *gin.Context) {
	var query listServiceRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requestSvc.List(c.Request.Context(), servicerequestdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		OwnerID: query.OwnerID,
		Status:  query.Status,
		Kind:    query.Kind,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Requests, "page_info": resp.PageInfo})
}

func (s *Server) GetServiceRequestReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := s.requestSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var serviceName string
	for _, entry := range s.feeSvc.Catalog(ctx).Services {
		if entry.Code == item.ServiceCode {
			serviceName = entry.Name
			break
		}
	}

	doc, err := s.receipts.GenerateReceipt(ctx, receipt.FromServiceRequest(item, serviceName, s.clock.Now()))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "receipt-"+item.ID.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}
