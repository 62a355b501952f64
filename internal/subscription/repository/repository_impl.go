package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) ListBySubscriber(ctx context.Context, db *gorm.DB, subscriber catalog.EntityRef) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("subscriber_kind = ? AND subscriber_id = ?", subscriber.Kind, subscriber.ID).
		Order("id DESC").
		Find(&subscriptions).Error
	return subscriptions, err
}

func (r *repo) ExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("ends_at IS NOT NULL AND ends_at >= ? AND ends_at < ? AND cancelled_at IS NULL", from, to).
		Order("ends_at ASC").
		Find(&subscriptions).Error
	return subscriptions, err
}
