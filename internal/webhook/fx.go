package webhook

import (
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"github.com/smallbiznis/payway/internal/webhook/domain"
	"github.com/smallbiznis/payway/internal/webhook/repository"
	"github.com/smallbiznis/payway/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) transactiondomain.EventPublisher {
		return svc.(transactiondomain.EventPublisher)
	}),
)
