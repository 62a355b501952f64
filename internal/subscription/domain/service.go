package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/money"
)

var (
	// ErrSubscription is the base class for invalid subscription
	// operations; the specialised errors below wrap it.
	ErrSubscription = errors.New("invalid_subscription")

	ErrSubscriptionNotFound = fmt.Errorf("%w: not_found", ErrSubscription)
	ErrAlreadySubscribed    = fmt.Errorf("%w: already_subscribed", ErrSubscription)
	// ErrDowngrade rejects plan changes to a cheaper offering; callers must
	// cancel and resubscribe instead.
	ErrDowngrade        = fmt.Errorf("%w: downgrade_not_allowed", ErrSubscription)
	ErrNotRefundable    = fmt.Errorf("%w: not_refundable", ErrSubscription)
	ErrNotExtendable    = fmt.Errorf("%w: not_extendable", ErrSubscription)
	ErrNoPayment        = fmt.Errorf("%w: no_payment", ErrSubscription)
	ErrNotOnGracePeriod = errors.New("not_on_grace_period")
)

// SubscribeRequest creates a new subscription, or performs a proration
// exchange when the subscriber already holds a subscription to another
// instance of a single-subscription offering kind.
type SubscribeRequest struct {
	Subscriber catalog.EntityRef
	Offering   catalog.EntityRef
	Coupon     catalog.Coupon
	Metadata   map[string]any
	// StartsAt defaults to now.
	StartsAt *time.Time
	// Infinite leaves EndsAt unset; the subscription never expires.
	Infinite bool
	// Exchange permits currency conversion on the purchase charge.
	Exchange bool
	// WalletName selects the wallet charged; empty means the default.
	WalletName string
}

type ExtendRequest struct {
	Subscriber catalog.EntityRef
	Offering   catalog.EntityRef
	Exchange   bool
	WalletName string
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error)
	// Extend charges the renewal price and advances EndsAt by one interval
	// as a single atomic unit.
	Extend(ctx context.Context, req ExtendRequest) (*Subscription, error)
	// Cancel marks the subscription cancelled at period end; it stays
	// usable until EndsAt passes (grace period).
	Cancel(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// CancelNow terminates immediately, without a grace period.
	CancelNow(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// Resume clears a cancellation while still on grace period.
	Resume(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// Refund credits back the last paid amount (scaled by the unused
	// fraction unless full) and ends the subscription immediately.
	Refund(ctx context.Context, id snowflake.ID, full bool) (money.Money, error)
	// LastPaid is the absolute amount of the newest charge referencing the
	// subscription.
	LastPaid(ctx context.Context, id snowflake.ID) (money.Money, error)

	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ListBySubscriber(ctx context.Context, subscriber catalog.EntityRef) ([]Subscription, error)
	// ActiveSubscription returns the newest active (or future) subscription
	// the subscriber holds for the offering's kind, preferring the exact
	// instance when the offering allows multiple concurrent subscriptions.
	ActiveSubscription(ctx context.Context, subscriber, offering catalog.EntityRef) (*Subscription, error)
	Subscribed(ctx context.Context, subscriber, offering catalog.EntityRef) (bool, error)
	// ExpiringWithin lists recurring subscriptions whose EndsAt falls
	// within the next n days, for renewal reminders.
	ExpiringWithin(ctx context.Context, days int) ([]Subscription, error)
}
