package subscription

import (
	"github.com/zek/abone/internal/subscription/repository"
	"github.com/zek/abone/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
