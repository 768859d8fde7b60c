package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	payoutdomain "github.com/smallbiznis/payway/internal/payout/domain"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
)

type claimInfoResponse struct {
	Code         string                      `json:"code"`
	Status       promodomain.PromoCodeStatus `json:"status"`
	NetAmount    decimal.Decimal             `json:"net_amount"`
	DestCurrency string                      `json:"dest_currency"`
	ExpiresAt    time.Time                   `json:"expires_at"`
	ClaimedAt    *time.Time                  `json:"claimed_at,omitempty"`
}

// GetClaim backs the claim landing page. Everything the payer needs to decide
// is here; nothing about the sender's commission is.
func (s *Server) GetClaim(c *gin.Context) {
	code, err := s.promoSvc.Info(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	txn, err := s.txnSvc.Get(c.Request.Context(), code.TransactionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": claimInfoResponse{
		Code:         code.Code,
		Status:       code.Status,
		NetAmount:    txn.NetAmount,
		DestCurrency: txn.DestCurrency,
		ExpiresAt:    code.ExpiresAt,
		ClaimedAt:    code.ClaimedAt,
	}})
}

type redeemClaimRequest struct {
	RecipientWallet string  `json:"recipient_wallet"`
	PayoutMethod    string  `json:"payout_method"`
	RecipientEmail  *string `json:"recipient_email,omitempty"`
}

func (s *Server) RedeemClaim(c *gin.Context) {
	var req redeemClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	method := strings.TrimSpace(req.PayoutMethod)
	if method == "" {
		method = payoutdomain.MethodCryptoWallet
	}

	resp, err := s.promoSvc.Redeem(c.Request.Context(), promodomain.RedeemRequest{
		Code:            strings.TrimSpace(c.Param("code")),
		RecipientWallet: strings.TrimSpace(req.RecipientWallet),
		PayoutMethod:    method,
		RecipientEmail:  req.RecipientEmail,
		ClaimedIP:       c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
