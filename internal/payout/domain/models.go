package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	MethodCryptoWallet = "crypto_wallet"
	MethodManual       = "manual"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported_payout_method")
	ErrInvalidRecipient  = errors.New("invalid_recipient")
)

// Request carries everything an executor needs to move the net amount.
type Request struct {
	TransactionID   snowflake.ID
	Amount          decimal.Decimal
	Currency        string
	RecipientWallet string
	Method          string
}

// Result reports a completed payout. Reference is the executor's external
// identifier for reconciliation.
type Result struct {
	Reference string
}

// Executor performs the payout for one method.
type Executor interface {
	Method() string
	Execute(ctx context.Context, req Request) (Result, error)
}

// Dispatcher routes a request to the executor registered for its method.
type Dispatcher interface {
	Execute(ctx context.Context, req Request) (Result, error)
}
