package postgres

import (
	"context"
	"database/sql"

	"github.com/involy/involy/internal/domain/subscription"
	"github.com/involy/involy/internal/pkg/errors"
)

// SubscriptionRepository implements subscription.Repository. Rows are
// written by the billing webhook handler; this repository only reads them.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *sql.DB) subscription.Repository {
	return &SubscriptionRepository{db: db}
}

// GetByUserID retrieves the mirrored subscription record for a user
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*subscription.Record, error) {
	query := `
		SELECT user_id, tier, subscribed, period_end, billing_ref
		FROM subscriptions WHERE user_id = $1
	`

	var rec subscription.Record
	var tier string
	var billingRef sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID, &tier, &rec.Subscribed, &rec.PeriodEnd, &billingRef,
	)
	if err == sql.ErrNoRows {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, errors.UpstreamUnavailable("Failed to get subscription", err)
	}

	rec.Tier = subscription.Tier(tier)
	if billingRef.Valid {
		rec.BillingRef = billingRef.String
	}

	return &rec, nil
}
