package executors

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/payway/internal/payout/domain"
	"go.uber.org/zap"
)

// Manual parks the payout for operator processing. Settlement is recorded
// immediately; the operator reconciles against the reference.
type Manual struct {
	log *zap.Logger
}

func NewManual(log *zap.Logger) *Manual {
	return &Manual{log: log.Named("payout.manual")}
}

func (e *Manual) Method() string { return domain.MethodManual }

func (e *Manual) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	reference := "manual_" + uuid.NewString()
	e.log.Info("manual payout queued",
		zap.String("transaction_id", req.TransactionID.String()),
		zap.String("currency", req.Currency),
		zap.String("amount", req.Amount.String()),
		zap.String("reference", reference),
	)
	return domain.Result{Reference: reference}, nil
}

var _ domain.Executor = (*Manual)(nil)
