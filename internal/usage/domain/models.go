// Package domain contains the usage meter model and contracts: per-feature
// counters scoped to a rolling validity window.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionUsage is one counter for one feature of one subscription
// within one validity window. The (subscription, code, valid_until) key is
// unique so concurrent recorders land on the same row.
type SubscriptionUsage struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;uniqueIndex:ux_subscription_usages_window,priority:1"`
	Code           string       `gorm:"type:text;not null;uniqueIndex:ux_subscription_usages_window,priority:2"`
	Used           float64      `gorm:"not null;default:0"`
	ValidUntil     time.Time    `gorm:"not null;uniqueIndex:ux_subscription_usages_window,priority:3"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionUsage) TableName() string { return "subscription_usages" }

// Expired reports whether the window has closed.
func (u *SubscriptionUsage) Expired(now time.Time) bool {
	return !u.ValidUntil.After(now)
}
