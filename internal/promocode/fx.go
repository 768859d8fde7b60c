package promocode

import (
	"github.com/smallbiznis/payway/internal/promocode/repository"
	"github.com/smallbiznis/payway/internal/promocode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promocode.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewIssuer),
)
