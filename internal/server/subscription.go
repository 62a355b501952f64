package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/zek/abone/internal/catalog"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	SubscriberKind string         `json:"subscriber_kind" binding:"required"`
	SubscriberID   int64          `json:"subscriber_id" binding:"required"`
	OfferingKind   string         `json:"offering_kind" binding:"required"`
	OfferingID     int64          `json:"offering_id" binding:"required"`
	Metadata       map[string]any `json:"metadata"`
	StartsAt       *time.Time     `json:"starts_at"`
	Infinite       bool           `json:"infinite"`
	Exchange       bool           `json:"exchange"`
	WalletName     string         `json:"wallet_name"`
}

type extendSubscriptionRequest struct {
	SubscriberKind string `json:"subscriber_kind" binding:"required"`
	SubscriberID   int64  `json:"subscriber_id" binding:"required"`
	OfferingKind   string `json:"offering_kind" binding:"required"`
	OfferingID     int64  `json:"offering_id" binding:"required"`
	Exchange       bool   `json:"exchange"`
	WalletName     string `json:"wallet_name"`
}

type refundSubscriptionRequest struct {
	Full bool `json:"full"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, err := s.subscriptionSvc.Subscribe(c.Request.Context(), subscriptiondomain.SubscribeRequest{
		Subscriber: catalog.NewRef(req.SubscriberKind, snowflake.ID(req.SubscriberID)),
		Offering:   catalog.NewRef(req.OfferingKind, snowflake.ID(req.OfferingID)),
		Metadata:   req.Metadata,
		StartsAt:   req.StartsAt,
		Infinite:   req.Infinite,
		Exchange:   req.Exchange,
		WalletName: req.WalletName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) ExtendSubscription(c *gin.Context) {
	var req extendSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, err := s.subscriptionSvc.Extend(c.Request.Context(), subscriptiondomain.ExtendRequest{
		Subscriber: catalog.NewRef(req.SubscriberKind, snowflake.ID(req.SubscriberID)),
		Offering:   catalog.NewRef(req.OfferingKind, snowflake.ID(req.OfferingID)),
		Exchange:   req.Exchange,
		WalletName: req.WalletName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, err := s.subscriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.mutateSubscription(c, s.subscriptionSvc.Cancel)
}

func (s *Server) CancelSubscriptionNow(c *gin.Context) {
	s.mutateSubscription(c, s.subscriptionSvc.CancelNow)
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	s.mutateSubscription(c, s.subscriptionSvc.Resume)
}

func (s *Server) mutateSubscription(c *gin.Context, op func(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error)) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, err := op(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) RefundSubscription(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req refundSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	refunded, err := s.subscriptionSvc.Refund(c.Request.Context(), id, req.Full)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{Amount: refunded.Amount, Currency: refunded.Currency})
}

func (s *Server) ListExpiringSubscriptions(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		days = parsed
	}

	subscriptions, err := s.subscriptionSvc.ExpiringWithin(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscriptions)
}
