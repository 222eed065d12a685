// Package entitlement translates a mirrored subscription tier into feature
// flags and usage ceilings. Checks here are advisory for the UI; the
// backend enforces the same limits again at the point of persistence.
package entitlement

import (
	"context"
	"errors"

	"github.com/involy/involy/internal/domain/subscription"
	"github.com/involy/involy/internal/pkg/logger"
)

// Engine answers entitlement questions for a user. It never contacts the
// payment processor; it only reads the mirrored subscription record.
type Engine struct {
	subs   subscription.Repository
	logger *logger.Logger
}

// NewEngine creates an entitlement engine over the subscription mirror
func NewEngine(subs subscription.Repository, log *logger.Logger) *Engine {
	return &Engine{
		subs:   subs,
		logger: log,
	}
}

// TierFor resolves the subscription tier for a user, defaulting to free
// when the user id is empty, no record exists, or the record is inactive.
func (e *Engine) TierFor(ctx context.Context, userID string) subscription.Tier {
	if userID == "" {
		return subscription.TierFree
	}

	rec, err := e.subs.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, subscription.ErrNotFound) {
			e.logger.WithError(err).Warn("Subscription lookup failed, treating as free tier")
		}
		return subscription.TierFree
	}

	if !rec.Subscribed {
		return subscription.TierFree
	}

	tier, err := subscription.ParseTier(string(rec.Tier))
	if err != nil {
		e.logger.WithError(err).With("user_id", userID).Warn("Subscription record carries unknown tier")
		return subscription.TierFree
	}
	return tier
}

// CanCreate reports whether the user's tier allows creating another record
// of the given kind when currentCount already exist. Advisory only.
func (e *Engine) CanCreate(ctx context.Context, userID string, kind Resource, currentCount int) bool {
	ceiling := Ceiling(e.TierFor(ctx, userID), kind)
	if ceiling == Unlimited {
		return true
	}
	return currentCount < ceiling
}

// FeaturesFor returns the cumulative feature set for the user's tier
func (e *Engine) FeaturesFor(ctx context.Context, userID string) []Feature {
	return PlanFor(e.TierFor(ctx, userID)).Features
}
