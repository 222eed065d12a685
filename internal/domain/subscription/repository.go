package subscription

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user has no subscription record. Callers
// treat it as the free tier.
var ErrNotFound = errors.New("subscription not found")

// Repository defines read-only access to the mirrored subscription record.
// Writes happen in the billing collaborator's webhook handler, never here.
type Repository interface {
	// GetByUserID retrieves the subscription record for a user, or
	// ErrNotFound when none exists.
	GetByUserID(ctx context.Context, userID string) (*Record, error)
}
