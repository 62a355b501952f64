package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zek/abone/internal/config"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	usagedomain "github.com/zek/abone/internal/usage/domain"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	walletSvc       walletdomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	WalletSvc       walletdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		walletSvc:       p.WalletSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Wallets --------
	v1.POST("/wallets/open", s.OpenWallet)
	v1.GET("/wallets/:id/balance", s.GetBalance)
	v1.GET("/wallets/:id/transactions", s.ListTransactions)
	v1.POST("/wallets/:id/credit", s.CreditWallet)
	v1.POST("/wallets/:id/charge", s.ChargeWallet)
	v1.POST("/wallets/:id/recalculate", s.RecalculateBalance)
	v1.POST("/transfers", s.Transfer)
	v1.DELETE("/transactions/:id", s.DeleteTransaction)

	// -------- Subscriptions --------
	v1.POST("/subscriptions", s.CreateSubscription)
	v1.POST("/subscriptions/extend", s.ExtendSubscription)
	v1.GET("/subscriptions/expiring", s.ListExpiringSubscriptions)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	v1.POST("/subscriptions/:id/cancel_now", s.CancelSubscriptionNow)
	v1.POST("/subscriptions/:id/resume", s.ResumeSubscription)
	v1.POST("/subscriptions/:id/refund", s.RefundSubscription)

	// -------- Abilities --------
	v1.GET("/subscriptions/:id/abilities/:code", s.GetAbility)
	v1.POST("/subscriptions/:id/abilities/:code/use", s.UseAbility)
	v1.POST("/subscriptions/:id/abilities/:code/return", s.ReturnAbility)
	v1.POST("/subscriptions/:id/usage/clear", s.ClearUsage)
}
