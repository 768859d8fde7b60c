package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
)

type createTransactionRequest struct {
	Amount         string  `json:"amount"`
	SourceCurrency string  `json:"source_currency"`
	DestCurrency   string  `json:"dest_currency"`
	ContactEmail   *string `json:"contact_email,omitempty"`
}

type createTransactionResponse struct {
	Transaction *transactiondomain.Transaction `json:"transaction"`
	ClaimCode   transactiondomain.IssuedCode   `json:"claim_code"`
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		AbortWithError(c, transactiondomain.ErrInvalidAmount)
		return
	}

	provider := authedProvider(c)
	if provider == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.txnSvc.Create(c.Request.Context(), transactiondomain.CreateRequest{
		SourceAmount:   amount,
		SourceCurrency: strings.ToUpper(strings.TrimSpace(req.SourceCurrency)),
		DestCurrency:   strings.ToUpper(strings.TrimSpace(req.DestCurrency)),
		ProviderID:     &provider.ID,
		ContactEmail:   req.ContactEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": createTransactionResponse{
		Transaction: resp.Transaction,
		ClaimCode:   resp.Code,
	}})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, transactiondomain.ErrNotFound)
		return
	}

	resp, err := s.txnSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// A provider only sees its own transactions. A mismatch reads as not
	// found so foreign IDs are unprobeable.
	provider := authedProvider(c)
	if provider == nil || resp.ProviderID == nil || *resp.ProviderID != provider.ID {
		AbortWithError(c, transactiondomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
