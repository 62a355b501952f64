package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/clock"
	"github.com/zek/abone/internal/config"
	"github.com/zek/abone/internal/exchange"
	"github.com/zek/abone/internal/money"
	"github.com/zek/abone/internal/subscription/repository"
	walletrepository "github.com/zek/abone/internal/wallet/repository"
	walletservice "github.com/zek/abone/internal/wallet/service"

	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type engineFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	registry *catalog.Registry
	wallets  walletdomain.Service
	svc      subscriptiondomain.Service

	basic *catalog.Plan
	pro   *catalog.Plan
}

func setupEngineTest(t *testing.T) *engineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	wallets := walletservice.NewService(walletservice.ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Repo:    walletrepository.Provide(),
		Gateway: exchange.NewGateway(),
		Config:  config.Config{DefaultCurrency: "USD"},
	})

	registry := catalog.NewRegistry()
	basic := &catalog.Plan{
		Kind:     "plan",
		ID:       node.Generate(),
		Name:     "basic",
		Price:    money.New(1000, "USD"),
		Interval: catalog.MustParseInterval("1 month"),
	}
	pro := &catalog.Plan{
		Kind:     "plan",
		ID:       node.Generate(),
		Name:     "pro",
		Price:    money.New(4000, "USD"),
		Interval: catalog.MustParseInterval("1 month"),
	}
	registry.Register(basic)
	registry.Register(pro)

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     repository.Provide(),
		Wallets:  wallets,
		Registry: registry,
	})

	return &engineFixture{
		db:       db,
		node:     node,
		clock:    fakeClock,
		registry: registry,
		wallets:  wallets,
		svc:      svc,
		basic:    basic,
		pro:      pro,
	}
}

func (f *engineFixture) fundedSubscriber(t *testing.T, amount int64) (catalog.EntityRef, *walletdomain.Wallet) {
	t.Helper()
	ctx := context.Background()
	subscriber := catalog.NewRef("user", f.node.Generate())
	wallet, err := f.wallets.OpenWallet(ctx, subscriber, "USD")
	require.NoError(t, err)
	if amount > 0 {
		_, err = f.wallets.Credit(ctx, wallet.ID, money.New(amount, "USD"), walletdomain.TransactionOptions{})
		require.NoError(t, err)
	}
	return subscriber, wallet
}

func (f *engineFixture) balance(t *testing.T, walletID snowflake.ID) int64 {
	t.Helper()
	balance, err := f.wallets.Balance(context.Background(), walletID)
	require.NoError(t, err)
	return balance.Amount
}

func TestSwitchPlan_CrossCurrency(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, usdWallet := f.fundedSubscriber(t, 5000)

	eur := &catalog.Plan{
		Kind:     "plan",
		ID:       f.node.Generate(),
		Name:     "basic-eur",
		Price:    money.New(500, "EUR"),
		Interval: catalog.MustParseInterval("1 month"),
	}
	f.registry.Register(eur)

	eurWallet, err := f.wallets.OpenWallet(ctx, subscriber, "EUR")
	require.NoError(t, err)
	_, err = f.wallets.Credit(ctx, eurWallet.ID, money.New(1000, "EUR"), walletdomain.TransactionOptions{})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	// Price ordering only exists within one currency: the nominally cheaper
	// EUR plan is not a downgrade, and the unused USD payment carries no
	// credit against the EUR charge.
	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   eur.Ref(),
		WalletName: "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", sub.Currency)
	assert.Equal(t, int64(500), f.balance(t, eurWallet.ID))
	assert.Equal(t, int64(4000), f.balance(t, usdWallet.ID))
}

func TestSubscribe_ChargesAndSetsPeriod(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   f.basic.Ref(),
	})
	require.NoError(t, err)

	now := f.clock.Now()
	assert.True(t, sub.Active(now))
	assert.True(t, sub.Recurring(now))
	assert.False(t, sub.Cancelled(now))
	require.NotNil(t, sub.EndsAt)
	assert.Equal(t, now.AddDate(0, 1, 0), *sub.EndsAt)
	assert.Equal(t, int64(1000), sub.RenewalAmount)

	assert.Equal(t, int64(4000), f.balance(t, wallet.ID))

	last, err := f.svc.LastPaid(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), last.Amount)
}

func TestSubscribe_SamePlanTwice(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscription)
}

func TestSubscribe_InsufficientFundsRollsBack(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 100)

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	subs, err := f.svc.ListBySubscriber(ctx, subscriber)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, int64(100), f.balance(t, wallet.ID))
}

func TestSubscribe_UpgradeChargesDifference(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 10000)

	old, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	// Nothing of the period used yet, so the whole last payment counts
	// against the new price: 4000 - 1000 = 3000.
	upgraded, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.pro.Ref()})
	require.NoError(t, err)
	assert.Equal(t, f.pro.ID, upgraded.SubscribableID)
	assert.Equal(t, int64(10000-1000-3000), f.balance(t, wallet.ID))

	ended, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, ended.Ended(f.clock.Now()))

	active, err := f.svc.ActiveSubscription(ctx, subscriber, f.pro.Ref())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, upgraded.ID, active.ID)
}

func TestSubscribe_UpgradeMidPeriodProrates(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 10000)

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	// Half of the 28-day month used: credit is 500, charge 4000 - 500.
	f.clock.Advance(14 * 24 * time.Hour)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.pro.Ref()})
	require.NoError(t, err)
	assert.Equal(t, int64(10000-1000-3500), f.balance(t, wallet.ID))
}

func TestSubscribe_DowngradeRejected(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 10000)

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.pro.Ref()})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrDowngrade)
}

func TestSubscribe_MultipleInstancesWhenAllowed(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 10000)

	courseA := &catalog.Plan{
		Kind:     "course",
		ID:       f.node.Generate(),
		Name:     "go-basics",
		Price:    money.New(500, "USD"),
		Interval: catalog.MustParseInterval("1 month"),
		Multiple: true,
	}
	courseB := &catalog.Plan{
		Kind:     "course",
		ID:       f.node.Generate(),
		Name:     "go-advanced",
		Price:    money.New(700, "USD"),
		Interval: catalog.MustParseInterval("1 month"),
		Multiple: true,
	}
	f.registry.Register(courseA)
	f.registry.Register(courseB)

	_, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: courseA.Ref()})
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: courseB.Ref()})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: courseA.Ref()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)

	ok, err := f.svc.Subscribed(ctx, subscriber, courseB.Ref())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscribe_FixedCoupon(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 5000)

	coupon := catalog.NewFixedCoupon(money.New(300, "USD"), false)
	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   f.basic.Ref(),
		Coupon:     coupon,
	})
	require.NoError(t, err)

	// One-shot coupon: first charge discounted, renewal price untouched.
	assert.Equal(t, int64(5000-700), f.balance(t, wallet.ID))
	assert.Equal(t, int64(1000), sub.RenewalAmount)
	assert.True(t, coupon.IsUsed())
}

func TestSubscribe_RecurringPercentCoupon(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   f.basic.Ref(),
		Coupon:     catalog.NewPercentCoupon(50, true),
	})
	require.NoError(t, err)

	// Recurring coupon bakes the discount into the renewal price.
	assert.Equal(t, int64(5000-500), f.balance(t, wallet.ID))
	assert.Equal(t, int64(500), sub.RenewalAmount)
}

func TestSubscribe_FutureStart(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	startsAt := f.clock.Now().AddDate(0, 0, 10)
	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   f.basic.Ref(),
		StartsAt:   &startsAt,
	})
	require.NoError(t, err)

	now := f.clock.Now()
	assert.True(t, sub.OnFuture(now))
	assert.False(t, sub.Active(now))
	assert.Equal(t, 0, sub.DaysUsed(now))
	assert.Equal(t, float64(1), sub.UsageLeft(now))
}

func TestSubscribe_Infinite(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{
		Subscriber: subscriber,
		Offering:   f.basic.Ref(),
		Infinite:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, sub.EndsAt)

	f.clock.Advance(90 * 24 * time.Hour)
	assert.True(t, sub.Active(f.clock.Now()))

	_, err = f.svc.Extend(ctx, subscriptiondomain.ExtendRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotExtendable)
}

func TestExtend_AdvancesEndDate(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	firstEnd := *sub.EndsAt

	extended, err := f.svc.Extend(ctx, subscriptiondomain.ExtendRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), *extended.EndsAt)
	assert.Equal(t, int64(3000), f.balance(t, wallet.ID))
}

func TestExtend_FailedChargeLeavesEndDate(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 1000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	firstEnd := *sub.EndsAt

	_, err = f.svc.Extend(ctx, subscriptiondomain.ExtendRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	fresh, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, firstEnd.Equal(*fresh.EndsAt))
}

func TestCancel_GracePeriodAndResume(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)

	now := f.clock.Now()
	assert.True(t, cancelled.Cancelled(now))
	assert.True(t, cancelled.OnGracePeriod(now))
	assert.True(t, cancelled.Active(now))
	assert.False(t, cancelled.Recurring(now))

	resumed, err := f.svc.Resume(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, resumed.Cancelled(now))
	assert.True(t, resumed.Recurring(now))
}

func TestResume_AfterGracePeriod(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)

	f.clock.Advance(40 * 24 * time.Hour)

	_, err = f.svc.Resume(ctx, sub.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotOnGracePeriod)
}

func TestCancelNow_EndsImmediately(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	ended, err := f.svc.CancelNow(ctx, sub.ID)
	require.NoError(t, err)

	now := f.clock.Now()
	assert.True(t, ended.Ended(now))
	assert.False(t, ended.Active(now))
	assert.False(t, ended.OnGracePeriod(now))
	assert.True(t, ended.CancelledImmediately)
}

func TestRefund_MidPeriodReturnsHalf(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 1000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.balance(t, wallet.ID))

	// Day 14 of a 28-day month: exactly half the period is unused.
	f.clock.Advance(14 * 24 * time.Hour)

	refunded, err := f.svc.Refund(ctx, sub.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(500), refunded.Amount)
	assert.Equal(t, int64(500), f.balance(t, wallet.ID))

	fresh, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Ended(f.clock.Now()))
}

func TestRefund_FullIgnoresUsage(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, wallet := f.fundedSubscriber(t, 1000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	f.clock.Advance(14 * 24 * time.Hour)

	refunded, err := f.svc.Refund(ctx, sub.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refunded.Amount)
	assert.Equal(t, int64(1000), f.balance(t, wallet.ID))
}

func TestRefund_EndedSubscription(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 1000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)
	_, err = f.svc.CancelNow(ctx, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, sub.ID, false)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotRefundable)
}

func TestRefund_NoPayment(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	now := f.clock.Now()
	endsAt := now.AddDate(0, 1, 0)

	// A row written outside the engine has no charge attached to it.
	sub := &subscriptiondomain.Subscription{
		ID:               f.node.Generate(),
		SubscriberKind:   "user",
		SubscriberID:     f.node.Generate(),
		SubscribableKind: "plan",
		SubscribableID:   f.basic.ID,
		Interval:         "1 month",
		RenewalAmount:    1000,
		Currency:         "USD",
		StartsAt:         now,
		EndsAt:           &endsAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.db.Create(sub).Error)

	_, err := f.svc.Refund(ctx, sub.ID, false)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoPayment)
}

func TestExpiringWithin(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	subscriber, _ := f.fundedSubscriber(t, 5000)

	sub, err := f.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{Subscriber: subscriber, Offering: f.basic.Ref()})
	require.NoError(t, err)

	none, err := f.svc.ExpiringWithin(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Day 25 of the period: the end date is now less than 7 days out.
	f.clock.Advance(25 * 24 * time.Hour)

	soon, err := f.svc.ExpiringWithin(ctx, 7)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, sub.ID, soon[0].ID)

	// Cancelled subscriptions are not renewal candidates.
	_, err = f.svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)
	after, err := f.svc.ExpiringWithin(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestGet_NotFound(t *testing.T) {
	f := setupEngineTest(t)

	_, err := f.svc.Get(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
