package entitlement

import "github.com/involy/involy/internal/domain/subscription"

// Feature is a gated product capability
type Feature string

// Features by the tier that introduces them. Higher tiers include every
// feature of the tiers below.
const (
	// free
	FeatureInvoicing       Feature = "invoicing"
	FeatureClientDirectory Feature = "client_directory"
	FeaturePDFExport       Feature = "pdf_export"
	// pro
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureRecurringInvoices Feature = "recurring_invoices"
	FeaturePaymentReminders  Feature = "payment_reminders"
	FeatureReports           Feature = "reports"
	// business
	FeatureTeamMembers     Feature = "team_members"
	FeatureAPIAccess       Feature = "api_access"
	FeaturePrioritySupport Feature = "priority_support"
)

// Resource is a record kind with a per-tier creation ceiling
type Resource string

const (
	ResourceInvoice Resource = "invoice"
	ResourceClient  Resource = "client"
)

// Unlimited marks a ceiling that does not apply
const Unlimited = -1

// Plan is one row of the tier table
type Plan struct {
	Tier     subscription.Tier
	Ceilings map[Resource]int
	Features []Feature
}

var freeFeatures = []Feature{
	FeatureInvoicing,
	FeatureClientDirectory,
	FeaturePDFExport,
}

var proFeatures = append(append([]Feature{}, freeFeatures...),
	FeatureCustomBranding,
	FeatureRecurringInvoices,
	FeaturePaymentReminders,
	FeatureReports,
)

var businessFeatures = append(append([]Feature{}, proFeatures...),
	FeatureTeamMembers,
	FeatureAPIAccess,
	FeaturePrioritySupport,
)

// plans is the immutable tier table, built once at package init
var plans = map[subscription.Tier]Plan{
	subscription.TierFree: {
		Tier: subscription.TierFree,
		Ceilings: map[Resource]int{
			ResourceInvoice: 5,
			ResourceClient:  10,
		},
		Features: freeFeatures,
	},
	subscription.TierPro: {
		Tier: subscription.TierPro,
		Ceilings: map[Resource]int{
			ResourceInvoice: Unlimited,
			ResourceClient:  Unlimited,
		},
		Features: proFeatures,
	},
	subscription.TierBusiness: {
		Tier: subscription.TierBusiness,
		Ceilings: map[Resource]int{
			ResourceInvoice: Unlimited,
			ResourceClient:  Unlimited,
		},
		Features: businessFeatures,
	},
}

// PlanFor returns the plan row for a tier. Unknown tiers map to free. The
// returned plan is a copy; mutating it cannot corrupt the table.
func PlanFor(tier subscription.Tier) Plan {
	p, ok := plans[tier]
	if !ok {
		p = plans[subscription.TierFree]
	}

	ceilings := make(map[Resource]int, len(p.Ceilings))
	for kind, c := range p.Ceilings {
		ceilings[kind] = c
	}
	features := make([]Feature, len(p.Features))
	copy(features, p.Features)

	return Plan{
		Tier:     p.Tier,
		Ceilings: ceilings,
		Features: features,
	}
}

// Ceiling returns the creation ceiling for a resource under a tier, or
// Unlimited when no ceiling applies.
func Ceiling(tier subscription.Tier, kind Resource) int {
	p := PlanFor(tier)
	if c, ok := p.Ceilings[kind]; ok {
		return c
	}
	return Unlimited
}

// HasFeature reports whether a tier's cumulative feature set includes the
// named feature.
func HasFeature(tier subscription.Tier, feature Feature) bool {
	for _, f := range PlanFor(tier).Features {
		if f == feature {
			return true
		}
	}
	return false
}
