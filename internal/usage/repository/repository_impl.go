package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/zek/abone/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) FindWindow(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, code string, validUntil time.Time) (*usagedomain.SubscriptionUsage, error) {
	var usage usagedomain.SubscriptionUsage
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND code = ? AND valid_until = ?", subscriptionID, code, validUntil).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repo) AddUsage(ctx context.Context, db *gorm.DB, usage *usagedomain.SubscriptionUsage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_usages (
			id, subscription_id, code, used, valid_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscription_id, code, valid_until)
		DO UPDATE SET used = subscription_usages.used + excluded.used, updated_at = excluded.updated_at`,
		usage.ID,
		usage.SubscriptionID,
		usage.Code,
		usage.Used,
		usage.ValidUntil,
		usage.CreatedAt,
		usage.UpdatedAt,
	).Error
}

func (r *repo) PutUsage(ctx context.Context, db *gorm.DB, usage *usagedomain.SubscriptionUsage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_usages (
			id, subscription_id, code, used, valid_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscription_id, code, valid_until)
		DO UPDATE SET used = excluded.used, updated_at = excluded.updated_at`,
		usage.ID,
		usage.SubscriptionID,
		usage.Code,
		usage.Used,
		usage.ValidUntil,
		usage.CreatedAt,
		usage.UpdatedAt,
	).Error
}

func (r *repo) SetUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, used float64, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_usages SET used = ?, updated_at = ? WHERE id = ?`,
		used,
		updatedAt,
		id,
	).Error
}

func (r *repo) DeleteUsage(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, code string, after time.Time) error {
	query := `DELETE FROM subscription_usages WHERE subscription_id = ?`
	args := []any{subscriptionID}
	if code != "" {
		query += ` AND code = ?`
		args = append(args, code)
	}
	if !after.IsZero() {
		query += ` AND valid_until > ?`
		args = append(args, after)
	}
	return db.WithContext(ctx).Exec(query, args...).Error
}

func (r *repo) DeleteBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscription_usages WHERE subscription_id = ?`,
		subscriptionID,
	).Error
}
