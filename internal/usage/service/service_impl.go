package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/clock"
	"github.com/zek/abone/internal/config"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	usagedomain "github.com/zek/abone/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// noExpiry marks the single lifetime window of a feature with no metering
// interval on a subscription with no end date.
var noExpiry = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  usagedomain.Repository

	subs          subscriptiondomain.Repository
	registry      *catalog.Registry
	positiveWords []string
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     usagedomain.Repository
	Subs     subscriptiondomain.Repository
	Registry *catalog.Registry
	Config   config.Config
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		subs:          p.Subs,
		registry:      p.Registry,
		positiveWords: p.Config.PositiveWords,
	}
}

// Ability implements domain.Service.
func (s *Service) Ability(ctx context.Context, subscriptionID snowflake.ID, code string) (*usagedomain.Ability, error) {
	subscription, feature, err := s.feature(ctx, subscriptionID, code)
	if err != nil {
		return nil, err
	}
	return s.ability(ctx, s.db, subscription, feature)
}

// Value implements domain.Service.
func (s *Service) Value(ctx context.Context, subscriptionID snowflake.ID, code, fallback string) (string, error) {
	_, feature, err := s.feature(ctx, subscriptionID, code)
	if errors.Is(err, usagedomain.ErrFeatureNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return feature.Value, nil
}

// CanUse implements domain.Service. An undefined code answers false rather
// than erroring; flags answer by their switch alone.
func (s *Service) CanUse(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64) (bool, error) {
	subscription, feature, err := s.feature(ctx, subscriptionID, code)
	if errors.Is(err, usagedomain.ErrFeatureNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	value := catalog.ParseFeatureValue(feature.Value, s.positiveWords)
	switch value.Kind {
	case catalog.FeatureFlag:
		return value.Flag, nil
	case catalog.FeatureQuota:
		if value.Quota == 0 {
			return false, nil
		}
		ability, err := s.ability(ctx, s.db, subscription, feature)
		if err != nil {
			return false, err
		}
		return ability.Remaining >= amount, nil
	default:
		return false, nil
	}
}

// Use implements domain.Service. Recording is unconditional; quota
// enforcement belongs to callers via CanUse. Concurrent recorders of the
// same window add up on the unique (subscription, code, valid_until) key.
func (s *Service) Use(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64, incremental bool) (*usagedomain.Ability, error) {
	subscription, feature, err := s.feature(ctx, subscriptionID, code)
	if err != nil {
		return nil, err
	}

	var ability *usagedomain.Ability
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ability, err = s.ability(ctx, tx, subscription, feature)
		if err != nil {
			return err
		}
		if !ability.Metered {
			return usagedomain.ErrFeatureNotMetered
		}

		now := s.clock.Now()
		row := &usagedomain.SubscriptionUsage{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			Code:           code,
			Used:           amount,
			ValidUntil:     ability.ValidUntil,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if incremental {
			if err := s.repo.AddUsage(ctx, tx, row); err != nil {
				return err
			}
			ability.Consumed += amount
		} else {
			if err := s.repo.PutUsage(ctx, tx, row); err != nil {
				return err
			}
			ability.Consumed = amount
		}

		ability.Remaining = ability.Quota - ability.Consumed
		if ability.Remaining < 0 {
			ability.Remaining = 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ability, nil
}

// Return implements domain.Service.
func (s *Service) Return(ctx context.Context, subscriptionID snowflake.ID, code string, amount float64) error {
	subscription, feature, err := s.feature(ctx, subscriptionID, code)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		validUntil := s.window(subscription, feature, now)
		row, err := s.repo.FindWindow(ctx, tx, subscription.ID, feature.Code, validUntil)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		used := row.Used - amount
		if used < 0 {
			used = 0
		}
		return s.repo.SetUsed(ctx, tx, row.ID, used, now)
	})
}

// Clear implements domain.Service. With onlyCurrent true only windows that
// have not ended yet are dropped, so expired rows stay behind as history.
func (s *Service) Clear(ctx context.Context, subscriptionID snowflake.ID, code string, onlyCurrent bool) error {
	after := time.Time{}
	if onlyCurrent {
		after = s.clock.Now()
	}
	return s.repo.DeleteUsage(ctx, s.db, subscriptionID, code, after)
}

// ClearAll implements domain.Service.
func (s *Service) ClearAll(ctx context.Context, subscriptionID snowflake.ID) error {
	return s.repo.DeleteBySubscription(ctx, s.db, subscriptionID)
}

func (s *Service) feature(ctx context.Context, subscriptionID snowflake.ID, code string) (*subscriptiondomain.Subscription, catalog.Feature, error) {
	subscription, err := s.subs.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, catalog.Feature{}, err
	}
	if subscription == nil {
		return nil, catalog.Feature{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	offering, err := s.registry.Resolve(subscription.Subscribable())
	if err != nil {
		return nil, catalog.Feature{}, err
	}
	feature, ok := offering.Features()[code]
	if !ok {
		return nil, catalog.Feature{}, usagedomain.ErrFeatureNotFound
	}
	return subscription, feature, nil
}

func (s *Service) ability(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription, feature catalog.Feature) (*usagedomain.Ability, error) {
	value := catalog.ParseFeatureValue(feature.Value, s.positiveWords)
	ability := &usagedomain.Ability{
		Code:    feature.Code,
		Value:   feature.Value,
		Enabled: value.Kind == catalog.FeatureFlag && value.Flag,
		Metered: value.Kind == catalog.FeatureQuota,
		Quota:   value.Quota,
	}
	if !ability.Metered {
		return ability, nil
	}

	now := s.clock.Now()
	ability.ValidUntil = s.window(subscription, feature, now)
	row, err := s.repo.FindWindow(ctx, db, subscription.ID, feature.Code, ability.ValidUntil)
	if err != nil {
		return nil, err
	}
	if row != nil {
		ability.Consumed = row.Used
	}
	ability.Remaining = ability.Quota - ability.Consumed
	if ability.Remaining < 0 {
		ability.Remaining = 0
	}
	return ability, nil
}

// window tiles metering periods from the subscription's creation and
// returns the end of the period covering now. Counters from earlier
// periods stay behind under their old valid_until, which resets usage at
// each boundary.
func (s *Service) window(subscription *subscriptiondomain.Subscription, feature catalog.Feature, now time.Time) time.Time {
	interval := feature.Interval
	if interval.IsZero() {
		interval = subscription.ParsedInterval()
	}
	if interval.IsZero() {
		if subscription.EndsAt != nil {
			return *subscription.EndsAt
		}
		return noExpiry
	}

	end := interval.AddTo(subscription.CreatedAt)
	for !end.After(now) {
		end = interval.AddTo(end)
	}
	return end
}
