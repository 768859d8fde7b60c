package currency

import (
	"github.com/smallbiznis/payway/internal/currency/repository"
	"github.com/smallbiznis/payway/internal/currency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("currency.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
