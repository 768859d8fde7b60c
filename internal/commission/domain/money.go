package domain

import "github.com/shopspring/decimal"

// Breakdown is the frozen financial snapshot computed at transaction creation.
type Breakdown struct {
	ConvertedAmount  decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	NetAmount        decimal.Decimal
}

// ComputeNet applies net = sourceAmount * exchangeRate * (1 - commissionRate),
// rounded half-up to the destination currency's minor-unit precision. The
// commission amount absorbs the rounding remainder so converted = commission
// + net always holds. Amounts are validated positive upstream, so decimal's
// round-half-away-from-zero behaves as half-up here.
func ComputeNet(sourceAmount, commissionRate, exchangeRate decimal.Decimal, destPrecision int32) Breakdown {
	converted := sourceAmount.Mul(exchangeRate).Round(destPrecision)
	net := sourceAmount.Mul(exchangeRate).
		Mul(decimal.NewFromInt(1).Sub(commissionRate)).
		Round(destPrecision)

	return Breakdown{
		ConvertedAmount:  converted,
		CommissionRate:   commissionRate,
		CommissionAmount: converted.Sub(net),
		NetAmount:        net,
	}
}
