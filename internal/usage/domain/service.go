package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrFeatureNotFound = errors.New("feature_not_found")
	// ErrFeatureNotMetered rejects counter operations on features whose value
	// is a flag or raw text rather than a countable allowance.
	ErrFeatureNotMetered = errors.New("feature_not_metered")
	// ErrQuotaExceeded is the sentinel callers enforcing allowances report
	// when CanUse says no; recording itself never raises it.
	ErrQuotaExceeded = errors.New("quota_exceeded")
)

// Ability is a point-in-time read of one feature for one subscription.
type Ability struct {
	Code string
	// Value is the feature's configured raw value.
	Value string
	// Enabled is true for flag features set to a positive word.
	Enabled bool
	// Quota, Consumed and Remaining only carry meaning for metered
	// features; Metered reports whether they do.
	Metered   bool
	Quota     float64
	Consumed  float64
	Remaining float64
	// ValidUntil is the end of the current metering window.
	ValidUntil time.Time
}

type Service interface {
	// Ability resolves the feature and its consumption in the current
	// window.
	Ability(ctx context.Context, subscriptionID snowflake.ID, code string) (*Ability, error)
	// Value returns the feature's raw value, or fallback when the offering
	// does not define the code.
	Value(ctx context.Context, subscriptionID snowflake.ID, code, fallback string) (string, error)
	// CanUse reports whether the feature grants access: an enabled flag is
	// always usable, a quota is usable while amount more units fit in the
	// current window, and undefined or raw features never are.
	CanUse(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64) (bool, error)
	// Use records consumption and returns the refreshed ability. It does
	// not enforce the quota; callers gate on CanUse when they want to.
	// With incremental false the window's counter is set to amount instead
	// of added to.
	Use(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64, incremental bool) (*Ability, error)
	// Return hands back amount units; consumption never drops below zero.
	Return(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64) error
	// Clear deletes usage counters for code, or for every code when code is
	// empty. With onlyCurrent true, expired windows stay behind as history.
	Clear(ctx context.Context, subscriptionID snowflake.ID, code string, onlyCurrent bool) error
	// ClearAll drops every usage row of the subscription, history included.
	ClearAll(ctx context.Context, subscriptionID snowflake.ID) error
}

type Repository interface {
	FindWindow(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, code string, validUntil time.Time) (*SubscriptionUsage, error)
	// AddUsage increments the window's counter, creating the row when
	// missing. Concurrent callers with the same window key collide on the
	// unique index and add up instead of duplicating.
	AddUsage(ctx context.Context, db *gorm.DB, usage *SubscriptionUsage) error
	// PutUsage sets the window's counter to usage.Used, creating the row
	// when missing.
	PutUsage(ctx context.Context, db *gorm.DB, usage *SubscriptionUsage) error
	SetUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, used float64, updatedAt time.Time) error
	// DeleteUsage removes counters for one subscription. An empty code
	// matches every code; a non-zero after keeps rows whose window already
	// ended at or before it.
	DeleteUsage(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, code string, after time.Time) error
	DeleteBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error
}
