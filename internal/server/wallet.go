package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
)

type fundWalletRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"`
}

type listTransactionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (s *Server) GetOwnWallet(c *gin.Context) {
	actorID, _ := actorIDFromGin(c)
	s.writeWallet(c, actorID)
}

func (s *Server) GetWallet(c *gin.Context) {
	s.writeWallet(c, c.Param("owner_id"))
}

func (s *Server) writeWallet(c *gin.Context, ownerID string) {
	wallet, err := s.walletSvc.GetWallet(c.Request.Context(), strings.TrimSpace(ownerID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

func (s *Server) ListOwnWalletTransactions(c *gin.Context) {
	actorID, _ := actorIDFromGin(c)
	s.writeTransactions(c, actorID)
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	s.writeTransactions(c, c.Param("owner_id"))
}

func (s *Server) writeTransactions(c *gin.Context, ownerID string) {
	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.ListTransactions(c.Request.Context(), walletdomain.ListTransactionsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		OwnerID: strings.TrimSpace(ownerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

func (s *Server) FundWallet(c *gin.Context) {
	var req fundWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tx, err := s.walletSvc.Fund(c.Request.Context(), walletdomain.FundRequest{
		OwnerID:   c.Param("owner_id"),
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": tx})
}
