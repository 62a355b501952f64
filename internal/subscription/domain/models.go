// Package domain contains the subscription model, its derived lifecycle
// state machine, and the entitlement engine contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/money"
	"gorm.io/datatypes"
)

// EntityKindSubscription is the reference kind ledger transactions use to
// point back at the subscription that caused them.
const EntityKindSubscription = "subscription"

// Transaction hints written by the entitlement engine.
const (
	HintPurchase = "subscription.purchase"
	HintUpgrade  = "subscription.upgrade"
	HintExtend   = "subscription.extend"
	HintRefund   = "subscription.refund"
)

// Subscription is a time-boxed grant of an offering to a subscriber.
// Status is never stored; it is derived from the three timestamps against
// "now". A nil EndsAt means the subscription never expires.
type Subscription struct {
	ID                   snowflake.ID      `gorm:"primaryKey"`
	SubscriberKind       string            `gorm:"type:text;not null;index:ix_subscriptions_subscriber,priority:1"`
	SubscriberID         snowflake.ID      `gorm:"not null;index:ix_subscriptions_subscriber,priority:2"`
	SubscribableKind     string            `gorm:"type:text;not null;index:ix_subscriptions_subscribable,priority:1"`
	SubscribableID       snowflake.ID      `gorm:"not null;index:ix_subscriptions_subscribable,priority:2"`
	Interval             string            `gorm:"type:text;not null"`
	RenewalAmount        int64             `gorm:"not null"`
	Currency             string            `gorm:"type:text;not null"`
	StartsAt             time.Time         `gorm:"not null"`
	EndsAt               *time.Time        `gorm:"index"`
	CancelledAt          *time.Time        `gorm:""`
	CancelledImmediately bool              `gorm:"not null;default:false"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) Subscriber() catalog.EntityRef {
	return catalog.EntityRef{Kind: s.SubscriberKind, ID: s.SubscriberID}
}

func (s *Subscription) Subscribable() catalog.EntityRef {
	return catalog.EntityRef{Kind: s.SubscribableKind, ID: s.SubscribableID}
}

func (s *Subscription) RenewalPrice() money.Money {
	return money.New(s.RenewalAmount, s.Currency)
}

func (s *Subscription) ParsedInterval() catalog.Interval {
	iv, err := catalog.ParseInterval(s.Interval)
	if err != nil {
		return catalog.Interval{}
	}
	return iv
}

// Active reports whether the subscription has started and not ended.
func (s *Subscription) Active(now time.Time) bool {
	if s.EndsAt == nil {
		return !s.StartsAt.After(now)
	}
	return s.EndsAt.After(now) && !s.StartsAt.After(now)
}

// OnFuture reports whether the subscription has not started yet.
func (s *Subscription) OnFuture(now time.Time) bool {
	return s.StartsAt.After(now) && (s.EndsAt == nil || s.EndsAt.After(now))
}

// Cancelled reports whether the subscription was cancelled or its end date
// has passed.
func (s *Subscription) Cancelled(now time.Time) bool {
	if s.CancelledAt != nil {
		return true
	}
	return s.EndsAt != nil && !s.EndsAt.After(now)
}

// OnGracePeriod reports whether the subscription is cancelled but still
// active until its end date.
func (s *Subscription) OnGracePeriod(now time.Time) bool {
	return s.CancelledAt != nil && s.EndsAt != nil && s.EndsAt.After(now)
}

// Ended reports whether the subscription is cancelled and past any grace
// period.
func (s *Subscription) Ended(now time.Time) bool {
	return s.Cancelled(now) && !s.OnGracePeriod(now)
}

// Recurring reports whether the subscription will renew.
func (s *Subscription) Recurring(now time.Time) bool {
	return !s.Cancelled(now) && (s.Active(now) || s.OnFuture(now))
}

// DaysUsed counts whole days elapsed within the current billing cycle.
// Future subscriptions have used nothing; infinite subscriptions measure
// from their start.
func (s *Subscription) DaysUsed(now time.Time) int {
	if s.StartsAt.After(now) {
		return 0
	}
	cycleStart := s.StartsAt
	if s.EndsAt != nil {
		cycleStart = s.ParsedInterval().SubFrom(*s.EndsAt)
	}
	days := int(now.Sub(cycleStart).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// UsageLeft is the fraction of the current billing period remaining,
// clamped to [0, 1].
func (s *Subscription) UsageLeft(now time.Time) float64 {
	totalDays := s.ParsedInterval().TotalDays()
	if totalDays == 0 {
		return 0
	}
	left := (totalDays - float64(s.DaysUsed(now))) / totalDays
	if left < 0 {
		return 0
	}
	if left > 1 {
		return 1
	}
	return left
}
