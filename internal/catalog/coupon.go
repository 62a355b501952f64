package catalog

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/zek/abone/internal/money"
)

// CouponContext carries the entities involved when a coupon is evaluated
// or consumed.
type CouponContext struct {
	Subscriber     EntityRef
	Offering       EntityRef
	SubscriptionID snowflake.ID
}

// Coupon discounts a subscription price. Recurring coupons apply to every
// renewal (the discounted price becomes the renewal price); one-shot
// coupons only discount the first charge.
type Coupon interface {
	IsRecurring() bool
	DiscountAmount(price money.Money, ctx CouponContext) money.Money
	MarkAsUsed(ctx CouponContext)
}

// FixedCoupon discounts by a fixed amount, clamped to the price so the
// charge never goes negative.
type FixedCoupon struct {
	mu        sync.Mutex
	amount    money.Money
	recurring bool
	used      bool
}

func NewFixedCoupon(amount money.Money, recurring bool) *FixedCoupon {
	return &FixedCoupon{amount: amount, recurring: recurring}
}

func (c *FixedCoupon) IsRecurring() bool { return c.recurring }

func (c *FixedCoupon) DiscountAmount(price money.Money, _ CouponContext) money.Money {
	if c.amount.GreaterThan(price) {
		return price
	}
	return c.amount
}

func (c *FixedCoupon) MarkAsUsed(_ CouponContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = true
}

func (c *FixedCoupon) IsUsed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// PercentCoupon discounts by a percentage clamped to [0, 100].
type PercentCoupon struct {
	mu        sync.Mutex
	percent   float64
	recurring bool
	used      bool
}

func NewPercentCoupon(percent float64, recurring bool) *PercentCoupon {
	return &PercentCoupon{percent: percent, recurring: recurring}
}

func (c *PercentCoupon) IsRecurring() bool { return c.recurring }

func (c *PercentCoupon) DiscountAmount(price money.Money, _ CouponContext) money.Money {
	p := c.percent
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return price.Multiply(decimal.NewFromFloat(p / 100))
}

func (c *PercentCoupon) MarkAsUsed(_ CouponContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = true
}

func (c *PercentCoupon) IsUsed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
