package wallet

import (
	"github.com/zek/abone/internal/wallet/repository"
	"github.com/zek/abone/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
