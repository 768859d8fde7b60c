package payout

import (
	"github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/payout/domain"
	"github.com/smallbiznis/payway/internal/payout/executors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type registryParams struct {
	fx.In

	Log       *zap.Logger
	Metrics   *metrics.Metrics  `optional:"true"`
	Executors []domain.Executor `group:"payout_executors"`
}

var Module = fx.Module("payout",
	fx.Provide(
		fx.Annotate(
			func(log *zap.Logger) domain.Executor { return executors.NewCryptoWallet(log) },
			fx.ResultTags(`group:"payout_executors"`),
		),
		fx.Annotate(
			func(log *zap.Logger) domain.Executor { return executors.NewManual(log) },
			fx.ResultTags(`group:"payout_executors"`),
		),
	),
	fx.Provide(func(p registryParams) domain.Dispatcher {
		return NewRegistry(p.Metrics, p.Executors...)
	}),
)
