package executors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/payway/internal/payout/domain"
	"go.uber.org/zap"
)

// CryptoWallet sends the net amount to the recipient's on-chain address.
// Broadcasting is delegated to the treasury hot wallet; here we validate and
// record the transfer intent.
type CryptoWallet struct {
	log *zap.Logger
}

func NewCryptoWallet(log *zap.Logger) *CryptoWallet {
	return &CryptoWallet{log: log.Named("payout.crypto_wallet")}
}

func (e *CryptoWallet) Method() string { return domain.MethodCryptoWallet }

func (e *CryptoWallet) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	wallet := strings.TrimSpace(req.RecipientWallet)
	if len(wallet) < 20 {
		return domain.Result{}, domain.ErrInvalidRecipient
	}

	reference := "cw_" + uuid.NewString()
	e.log.Info("crypto payout queued",
		zap.String("transaction_id", req.TransactionID.String()),
		zap.String("currency", req.Currency),
		zap.String("amount", req.Amount.String()),
		zap.String("reference", reference),
	)
	return domain.Result{Reference: reference}, nil
}

var _ domain.Executor = (*CryptoWallet)(nil)
