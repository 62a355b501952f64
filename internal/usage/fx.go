package usage

import (
	"github.com/zek/abone/internal/usage/repository"
	"github.com/zek/abone/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
