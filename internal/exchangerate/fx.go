package exchangerate

import (
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/exchangerate/domain"
	"github.com/smallbiznis/payway/internal/exchangerate/repository"
	"github.com/smallbiznis/payway/internal/exchangerate/service"
	"github.com/smallbiznis/payway/internal/exchangerate/source"
	"go.uber.org/fx"
)

var Module = fx.Module("exchangerate.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) domain.Source {
				return source.NewBinance(cfg.Rates.BinanceURL)
			},
			fx.ResultTags(`group:"rate_sources"`),
		),
		fx.Annotate(
			func(cfg config.Config) domain.Source {
				return source.NewCoinGecko(cfg.Rates.CoinGeckoURL, cfg.Rates.CoinGeckoAPIKey)
			},
			fx.ResultTags(`group:"rate_sources"`),
		),
	),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Provider { return svc }),
)
