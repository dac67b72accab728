package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	obstracing "github.com/smallbiznis/agentdesk/internal/observability/tracing"
)

type quoteRequest struct {
	ServiceCode string            `json:"service_code" binding:"required"`
	Inputs      map[string]string `json:"inputs"`
}

type quoteResponse struct {
	feedomain.Quote
	DisplayTotal string         `json:"display_total"`
	Breakdown    map[string]any `json:"breakdown"`
}

func (s *Server) ListServices(c *gin.Context) {
	catalog := s.feeSvc.Catalog(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": catalog})
}

// QuoteFee prices a prospective request without persisting anything.
func (s *Server) QuoteFee(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.ServiceCode)
	c.Set(obstracing.ServiceCodeKey, code)

	quote, err := s.feeSvc.Quote(c.Request.Context(), feedomain.QuoteRequest{
		ServiceCode: code,
		Inputs:      req.Inputs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quoteResponse{
		Quote:        quote,
		DisplayTotal: feedomain.FormatNaira(quote.Total),
		Breakdown:    quote.Breakdown(),
	}})
}
