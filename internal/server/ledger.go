package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
)

const (
	defaultLedgerEntries = 50
	maxLedgerEntries     = 200
)

type listLedgerEntriesQuery struct {
	SourceType string `form:"source_type"`
	SourceID   string `form:"source_id"`
	Limit      string `form:"limit"`
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	var query listLedgerEntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sourceID, err := parseSnowflakeParam(query.SourceID)
	if err != nil {
		AbortWithError(c, newValidationError("source_id", "invalid_source_id", "invalid source_id"))
		return
	}
	limit, err := parseLimit(query.Limit, defaultLedgerEntries, maxLedgerEntries)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 200"))
		return
	}

	entries, err := s.ledgerSvc.ListEntries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		SourceType: ledgerdomain.LedgerSourceType(strings.TrimSpace(query.SourceType)),
		SourceID:   sourceID,
		Limit:      limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) GetLedgerBalance(c *gin.Context) {
	code := ledgerdomain.LedgerAccountCode(strings.TrimSpace(c.Param("account")))
	balance, err := s.ledgerSvc.AccountBalance(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"account": code, "balance": balance}})
}
