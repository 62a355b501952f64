package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/clock"
	"github.com/zek/abone/internal/config"
	"github.com/zek/abone/internal/exchange"
	"github.com/zek/abone/internal/logger"
	"github.com/zek/abone/internal/migration"
	"github.com/zek/abone/internal/server"
	"github.com/zek/abone/internal/subscription"
	"github.com/zek/abone/internal/usage"
	"github.com/zek/abone/internal/wallet"
	"github.com/zek/abone/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		exchange.Module,
		catalog.Module,
		wallet.Module,
		subscription.Module,
		usage.Module,

		server.Module,
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
