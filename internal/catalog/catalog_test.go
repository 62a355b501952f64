package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zek/abone/internal/money"
)

var defaultPositiveWords = []string{"yes", "y", "true", "ok"}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	plan := &Plan{
		Kind:     "plan",
		ID:       1,
		Name:     "Plan 1",
		Price:    money.New(100, "USD"),
		Interval: Interval{Months: 1},
	}
	registry.Register(plan)

	resolved, err := registry.Resolve(plan.Ref())
	require.NoError(t, err)
	assert.Equal(t, plan, resolved)

	_, err = registry.Resolve(NewRef("plan", 2))
	assert.ErrorIs(t, err, ErrUnknownOffering)
}

func TestParseFeatureValue(t *testing.T) {
	flag := ParseFeatureValue("YES", defaultPositiveWords)
	assert.Equal(t, FeatureFlag, flag.Kind)
	assert.True(t, flag.Flag)

	quota := ParseFeatureValue("3", defaultPositiveWords)
	assert.Equal(t, FeatureQuota, quota.Kind)
	assert.Equal(t, float64(3), quota.Quota)

	raw := ParseFeatureValue("no", defaultPositiveWords)
	assert.Equal(t, FeatureRaw, raw.Kind)
	assert.False(t, raw.Flag)
	assert.Zero(t, raw.Quota)
}

func TestFixedCouponClampsToPrice(t *testing.T) {
	price := money.New(300, "USD")
	coupon := NewFixedCoupon(money.New(200, "USD"), false)

	assert.Equal(t, money.New(200, "USD"), coupon.DiscountAmount(price, CouponContext{}))

	generous := NewFixedCoupon(money.New(500, "USD"), false)
	assert.Equal(t, price, generous.DiscountAmount(price, CouponContext{}))

	assert.False(t, coupon.IsUsed())
	coupon.MarkAsUsed(CouponContext{})
	assert.True(t, coupon.IsUsed())
}

func TestPercentCouponClamps(t *testing.T) {
	price := money.New(300, "USD")

	assert.Equal(t, money.New(120, "USD"), NewPercentCoupon(40, false).DiscountAmount(price, CouponContext{}))
	assert.Equal(t, price, NewPercentCoupon(150, false).DiscountAmount(price, CouponContext{}))
	assert.Equal(t, money.Zero("USD"), NewPercentCoupon(-5, false).DiscountAmount(price, CouponContext{}))
}
