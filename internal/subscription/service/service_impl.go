package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/clock"
	"github.com/zek/abone/internal/money"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	wallets  walletdomain.Service
	registry *catalog.Registry
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Wallets  walletdomain.Service
	Registry *catalog.Registry
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		wallets:  p.Wallets,
		registry: p.Registry,
	}
}

// Subscribe implements domain.Service. A second subscription to the same
// offering instance is rejected; subscribing to a different instance of a
// single-subscription kind switches plans with proration.
func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (*subscriptiondomain.Subscription, error) {
	offering, err := s.registry.Resolve(req.Offering)
	if err != nil {
		return nil, err
	}

	existing, err := s.ActiveSubscription(ctx, req.Subscriber, req.Offering)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Subscribable().Equal(offering.Ref()) {
			return nil, subscriptiondomain.ErrAlreadySubscribed
		}
		return s.switchPlan(ctx, req, offering, existing)
	}

	return s.purchase(ctx, req, offering)
}

// purchase creates the subscription row and charges the first period as
// one atomic unit. The charge is paid up front even for future starts.
func (s *Service) purchase(ctx context.Context, req subscriptiondomain.SubscribeRequest, offering catalog.Offering) (*subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	price := offering.SubscriptionPrice()

	charge, renewal, err := s.applyCoupon(req, offering, price)
	if err != nil {
		return nil, err
	}

	subscription := s.build(req, offering, renewal, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return err
		}
		return s.chargeWallet(ctx, tx, req.Subscriber, req.WalletName, charge, subscription.ID, subscriptiondomain.HintPurchase, req.Exchange)
	})
	if err != nil {
		return nil, err
	}

	s.markCouponUsed(req, offering, subscription.ID)
	s.log.Info("subscription created",
		zap.String("subscriber", req.Subscriber.String()),
		zap.String("offering", offering.Ref().String()),
		zap.Int64("charged", charge.Amount),
	)
	return subscription, nil
}

// switchPlan ends the current subscription and starts the new one, crediting
// the unused fraction of the last payment against the new price. Cheaper
// plans are refused; cancel and resubscribe instead. Price ordering only
// exists within one currency, so a cross-currency switch skips the downgrade
// check and carries no credit.
func (s *Service) switchPlan(ctx context.Context, req subscriptiondomain.SubscribeRequest, offering catalog.Offering, current *subscriptiondomain.Subscription) (*subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	price := offering.SubscriptionPrice()

	if price.Currency == current.Currency && price.LessThan(current.RenewalPrice()) {
		return nil, subscriptiondomain.ErrDowngrade
	}

	unused, err := s.unusedCredit(ctx, current, price, now)
	if err != nil {
		return nil, err
	}

	charge, renewal, err := s.applyCoupon(req, offering, price)
	if err != nil {
		return nil, err
	}
	charge, err = charge.Subtract(unused)
	if err != nil {
		return nil, err
	}
	if charge.IsNegative() {
		charge = money.Zero(charge.Currency)
	}

	subscription := s.build(req, offering, renewal, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.endNow(current, now)
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return err
		}
		return s.chargeWallet(ctx, tx, req.Subscriber, req.WalletName, charge, subscription.ID, subscriptiondomain.HintUpgrade, req.Exchange)
	})
	if err != nil {
		return nil, err
	}

	s.markCouponUsed(req, offering, subscription.ID)
	s.log.Info("subscription switched",
		zap.String("subscriber", req.Subscriber.String()),
		zap.String("from", current.Subscribable().String()),
		zap.String("to", offering.Ref().String()),
		zap.Int64("charged", charge.Amount),
	)
	return subscription, nil
}

// Extend implements domain.Service.
func (s *Service) Extend(ctx context.Context, req subscriptiondomain.ExtendRequest) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.ActiveSubscription(ctx, req.Subscriber, req.Offering)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	now := s.clock.Now()
	if subscription.EndsAt == nil || subscription.Cancelled(now) {
		return nil, subscriptiondomain.ErrNotExtendable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chargeWallet(ctx, tx, req.Subscriber, req.WalletName, subscription.RenewalPrice(), subscription.ID, subscriptiondomain.HintExtend, req.Exchange); err != nil {
			return err
		}
		next := subscription.ParsedInterval().AddTo(*subscription.EndsAt)
		subscription.EndsAt = &next
		subscription.UpdatedAt = now
		return s.repo.Update(ctx, tx, subscription)
	})
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

// Cancel implements domain.Service. Subscriptions with an end date stay
// usable until it passes; infinite subscriptions end right away.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	subscription.CancelledAt = &now
	if subscription.EndsAt == nil {
		subscription.EndsAt = &now
		subscription.CancelledImmediately = true
	}
	subscription.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

// CancelNow implements domain.Service.
func (s *Service) CancelNow(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	s.endNow(subscription, now)
	if err := s.repo.Update(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

// Resume implements domain.Service.
func (s *Service) Resume(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !subscription.OnGracePeriod(now) {
		return nil, subscriptiondomain.ErrNotOnGracePeriod
	}
	subscription.CancelledAt = nil
	subscription.CancelledImmediately = false
	subscription.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

// Refund implements domain.Service. The credit lands on the wallet the
// original charge came out of, and the subscription ends immediately.
func (s *Service) Refund(ctx context.Context, id snowflake.ID, full bool) (money.Money, error) {
	subscription, err := s.mustFind(ctx, id)
	if err != nil {
		return money.Money{}, err
	}
	now := s.clock.Now()
	if !subscription.Active(now) && !subscription.OnFuture(now) {
		return money.Money{}, subscriptiondomain.ErrNotRefundable
	}

	lastCharge, err := s.wallets.LastChargeByReference(ctx, catalog.NewRef(subscriptiondomain.EntityKindSubscription, subscription.ID))
	if err != nil {
		return money.Money{}, err
	}
	if lastCharge == nil {
		return money.Money{}, subscriptiondomain.ErrNoPayment
	}

	amount := lastCharge.AmountMoney().Absolute()
	if !full {
		amount = amount.Multiply(decimal.NewFromFloat(subscription.UsageLeft(now)))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.wallets.InTx(tx).Credit(ctx, lastCharge.WalletID, amount, walletdomain.TransactionOptions{
			Reference: catalog.NewRef(subscriptiondomain.EntityKindSubscription, subscription.ID),
			Hint:      subscriptiondomain.HintRefund,
		})
		if err != nil {
			return err
		}
		s.endNow(subscription, now)
		return s.repo.Update(ctx, tx, subscription)
	})
	if err != nil {
		return money.Money{}, err
	}

	s.log.Info("subscription refunded",
		zap.Stringer("subscription_id", subscription.ID),
		zap.Int64("amount", amount.Amount),
		zap.Bool("full", full),
	)
	return amount, nil
}

// LastPaid implements domain.Service.
func (s *Service) LastPaid(ctx context.Context, id snowflake.ID) (money.Money, error) {
	subscription, err := s.mustFind(ctx, id)
	if err != nil {
		return money.Money{}, err
	}
	lastCharge, err := s.wallets.LastChargeByReference(ctx, catalog.NewRef(subscriptiondomain.EntityKindSubscription, subscription.ID))
	if err != nil {
		return money.Money{}, err
	}
	if lastCharge == nil {
		return money.Money{}, subscriptiondomain.ErrNoPayment
	}
	return lastCharge.AmountMoney().Absolute(), nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.mustFind(ctx, id)
}

// ListBySubscriber implements domain.Service.
func (s *Service) ListBySubscriber(ctx context.Context, subscriber catalog.EntityRef) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListBySubscriber(ctx, s.db, subscriber)
}

// ActiveSubscription implements domain.Service. Single-subscription kinds
// match any instance of the offering's kind; multi-subscription kinds only
// match the exact instance.
func (s *Service) ActiveSubscription(ctx context.Context, subscriber, offering catalog.EntityRef) (*subscriptiondomain.Subscription, error) {
	resolved, err := s.registry.Resolve(offering)
	if err != nil {
		return nil, err
	}

	subscriptions, err := s.repo.ListBySubscriber(ctx, s.db, subscriber)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range subscriptions {
		sub := &subscriptions[i]
		if !sub.Active(now) && !sub.OnFuture(now) {
			continue
		}
		if resolved.AllowsMultiple() {
			if sub.Subscribable().Equal(offering) {
				return sub, nil
			}
			continue
		}
		if sub.SubscribableKind == offering.Kind {
			return sub, nil
		}
	}
	return nil, nil
}

// Subscribed implements domain.Service.
func (s *Service) Subscribed(ctx context.Context, subscriber, offering catalog.EntityRef) (bool, error) {
	subscription, err := s.ActiveSubscription(ctx, subscriber, offering)
	if err != nil {
		return false, err
	}
	return subscription != nil, nil
}

// ExpiringWithin implements domain.Service.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	return s.repo.ExpiringBetween(ctx, s.db, now, now.AddDate(0, 0, days))
}

func (s *Service) mustFind(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) build(req subscriptiondomain.SubscribeRequest, offering catalog.Offering, renewal money.Money, now time.Time) *subscriptiondomain.Subscription {
	startsAt := now
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
	}

	var endsAt *time.Time
	if !req.Infinite {
		end := offering.SubscriptionInterval().AddTo(startsAt)
		endsAt = &end
	}

	ref := offering.Ref()
	return &subscriptiondomain.Subscription{
		ID:               s.genID.Generate(),
		SubscriberKind:   req.Subscriber.Kind,
		SubscriberID:     req.Subscriber.ID,
		SubscribableKind: ref.Kind,
		SubscribableID:   ref.ID,
		Interval:         offering.SubscriptionInterval().String(),
		RenewalAmount:    renewal.Amount,
		Currency:         renewal.Currency,
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		Metadata:         datatypes.JSONMap(req.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// applyCoupon returns the first charge and the renewal price. Recurring
// coupons bake the discount into the renewal price; one-shot coupons only
// discount the first charge.
func (s *Service) applyCoupon(req subscriptiondomain.SubscribeRequest, offering catalog.Offering, price money.Money) (charge, renewal money.Money, err error) {
	charge, renewal = price, price
	if req.Coupon == nil {
		return charge, renewal, nil
	}

	cctx := catalog.CouponContext{Subscriber: req.Subscriber, Offering: offering.Ref()}
	discount := req.Coupon.DiscountAmount(price, cctx)
	charge, err = price.Subtract(discount)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	if charge.IsNegative() {
		charge = money.Zero(price.Currency)
	}
	if req.Coupon.IsRecurring() {
		renewal = charge
	}
	return charge, renewal, nil
}

func (s *Service) markCouponUsed(req subscriptiondomain.SubscribeRequest, offering catalog.Offering, subscriptionID snowflake.ID) {
	if req.Coupon == nil {
		return
	}
	req.Coupon.MarkAsUsed(catalog.CouponContext{
		Subscriber:     req.Subscriber,
		Offering:       offering.Ref(),
		SubscriptionID: subscriptionID,
	})
}

// unusedCredit values the remaining fraction of the current period from the
// last payment. Payments taken in a different currency carry no credit.
func (s *Service) unusedCredit(ctx context.Context, current *subscriptiondomain.Subscription, price money.Money, now time.Time) (money.Money, error) {
	credit := money.Zero(price.Currency)

	lastCharge, err := s.wallets.LastChargeByReference(ctx, catalog.NewRef(subscriptiondomain.EntityKindSubscription, current.ID))
	if err != nil {
		return money.Money{}, err
	}
	if lastCharge == nil || lastCharge.Currency != price.Currency {
		return credit, nil
	}

	credit = lastCharge.AmountMoney().Absolute().Multiply(decimal.NewFromFloat(current.UsageLeft(now)))
	if credit.GreaterThan(price) {
		credit = price
	}
	return credit, nil
}

func (s *Service) chargeWallet(ctx context.Context, tx *gorm.DB, subscriber catalog.EntityRef, walletName string, amount money.Money, subscriptionID snowflake.ID, hint string, exchange bool) error {
	wallets := s.wallets.InTx(tx)
	wallet, err := wallets.OpenWallet(ctx, subscriber, walletName)
	if err != nil {
		return err
	}
	_, err = wallets.Charge(ctx, wallet.ID, amount, walletdomain.TransactionOptions{
		Reference: catalog.NewRef(subscriptiondomain.EntityKindSubscription, subscriptionID),
		Hint:      hint,
		Exchange:  exchange,
	})
	return err
}

func (s *Service) endNow(subscription *subscriptiondomain.Subscription, now time.Time) {
	subscription.CancelledAt = &now
	subscription.CancelledImmediately = true
	subscription.EndsAt = &now
	subscription.UpdatedAt = now
}
