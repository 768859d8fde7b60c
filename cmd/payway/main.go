package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/cache"
	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/migration"
	"github.com/smallbiznis/payway/internal/observability"
	"github.com/smallbiznis/payway/internal/scheduler"
	"github.com/smallbiznis/payway/internal/server"
	"github.com/smallbiznis/payway/pkg/db"
	"go.uber.org/fx"
)

// The monolith: HTTP API, outbox sweeper and rate refresher in one process.
// Split deployments run apps/scheduler alongside API-only instances instead.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,

		server.Module,
		scheduler.Module,
		migration.Module,
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
