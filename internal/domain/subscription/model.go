package subscription

import (
	"fmt"
	"time"
)

// Tier is the closed set of subscription tiers. Feature inclusion is
// monotonic: business covers pro covers free.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// rank orders tiers for cumulative feature checks
func (t Tier) rank() int {
	switch t {
	case TierPro:
		return 1
	case TierBusiness:
		return 2
	default:
		return 0
	}
}

// Covers reports whether t includes everything other grants
func (t Tier) Covers(other Tier) bool {
	return t.rank() >= other.rank()
}

// ParseTier validates a tier string from the backend store
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPro, TierBusiness:
		return Tier(s), nil
	}
	return TierFree, fmt.Errorf("unknown subscription tier %q", s)
}

// Record mirrors the subscription row owned by the billing collaborator.
// This subsystem only ever reads it.
type Record struct {
	UserID     string    `json:"user_id"`
	Tier       Tier      `json:"tier"`
	Subscribed bool      `json:"subscribed"`
	PeriodEnd  time.Time `json:"period_end"`
	BillingRef string    `json:"billing_ref,omitempty"`
}
