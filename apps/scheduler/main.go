package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/cache"
	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/commission"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/currency"
	"github.com/smallbiznis/payway/internal/exchangerate"
	"github.com/smallbiznis/payway/internal/observability"
	"github.com/smallbiznis/payway/internal/payout"
	"github.com/smallbiznis/payway/internal/promocode"
	"github.com/smallbiznis/payway/internal/provider"
	"github.com/smallbiznis/payway/internal/scheduler"
	"github.com/smallbiznis/payway/internal/transaction"
	"github.com/smallbiznis/payway/internal/webhook"
	"github.com/smallbiznis/payway/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweeper for split deployments. Runs the same jobs as the
// monolith; the redis lock keeps concurrent instances from doubling work.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,

		// Domain services required by the jobs
		currency.Module,
		exchangerate.Module,
		commission.Module,
		provider.Module,
		payout.Module,
		webhook.Module,
		promocode.Module,
		transaction.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
