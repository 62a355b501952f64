package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// ListBySubscriber returns all of the subscriber's subscriptions,
	// newest first.
	ListBySubscriber(ctx context.Context, db *gorm.DB, subscriber catalog.EntityRef) ([]Subscription, error)
	// ExpiringBetween returns non-cancelled subscriptions whose end date
	// falls inside [from, to).
	ExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Subscription, error)
}
