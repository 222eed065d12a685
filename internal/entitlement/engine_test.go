package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/involy/involy/internal/domain/subscription"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/testutil"
)

func newTestEngine() (*Engine, *testutil.MockSubscriptionRepository) {
	subs := testutil.NewMockSubscriptionRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return NewEngine(subs, log), subs
}

func subscribe(subs *testutil.MockSubscriptionRepository, userID string, tier subscription.Tier, active bool) {
	subs.Records[userID] = &subscription.Record{
		UserID:     userID,
		Tier:       tier,
		Subscribed: active,
		PeriodEnd:  time.Now().Add(30 * 24 * time.Hour),
	}
}

func TestEngine_TierFor(t *testing.T) {
	e, subs := newTestEngine()
	subscribe(subs, "pro-user", subscription.TierPro, true)
	subscribe(subs, "biz-user", subscription.TierBusiness, true)
	subscribe(subs, "lapsed-user", subscription.TierPro, false)
	subscribe(subs, "odd-user", subscription.Tier("platinum"), true)

	tests := []struct {
		name   string
		userID string
		want   subscription.Tier
	}{
		{name: "active pro", userID: "pro-user", want: subscription.TierPro},
		{name: "active business", userID: "biz-user", want: subscription.TierBusiness},
		{name: "inactive record falls to free", userID: "lapsed-user", want: subscription.TierFree},
		{name: "unknown tier falls to free", userID: "odd-user", want: subscription.TierFree},
		{name: "no record falls to free", userID: "stranger", want: subscription.TierFree},
		{name: "empty user id falls to free", userID: "", want: subscription.TierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.TierFor(context.Background(), tt.userID); got != tt.want {
				t.Errorf("TierFor(%q) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestEngine_TierForLookupFailure(t *testing.T) {
	e, subs := newTestEngine()
	subs.GetError = errors.New("connection refused")

	if got := e.TierFor(context.Background(), "anyone"); got != subscription.TierFree {
		t.Errorf("TierFor() = %v on lookup failure, want free", got)
	}
}

func TestEngine_CanCreate(t *testing.T) {
	e, subs := newTestEngine()
	subscribe(subs, "pro-user", subscription.TierPro, true)

	tests := []struct {
		name    string
		userID  string
		kind    Resource
		current int
		want    bool
	}{
		{name: "free under invoice ceiling", userID: "free-user", kind: ResourceInvoice, current: 4, want: true},
		{name: "free at invoice ceiling", userID: "free-user", kind: ResourceInvoice, current: 5, want: false},
		{name: "free over invoice ceiling", userID: "free-user", kind: ResourceInvoice, current: 12, want: false},
		{name: "free under client ceiling", userID: "free-user", kind: ResourceClient, current: 9, want: true},
		{name: "free at client ceiling", userID: "free-user", kind: ResourceClient, current: 10, want: false},
		{name: "pro invoices unlimited", userID: "pro-user", kind: ResourceInvoice, current: 999999, want: true},
		{name: "pro clients unlimited", userID: "pro-user", kind: ResourceClient, current: 999999, want: true},
		{name: "unknown resource has no ceiling", userID: "free-user", kind: Resource("estimate"), current: 999999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CanCreate(context.Background(), tt.userID, tt.kind, tt.current); got != tt.want {
				t.Errorf("CanCreate(%q, %s, %d) = %v, want %v", tt.userID, tt.kind, tt.current, got, tt.want)
			}
		})
	}
}

func TestHasFeature_Cumulative(t *testing.T) {
	tests := []struct {
		tier    subscription.Tier
		feature Feature
		want    bool
	}{
		{subscription.TierFree, FeatureInvoicing, true},
		{subscription.TierFree, FeaturePDFExport, true},
		{subscription.TierFree, FeatureReports, false},
		{subscription.TierFree, FeatureAPIAccess, false},
		{subscription.TierPro, FeatureInvoicing, true},
		{subscription.TierPro, FeatureReports, true},
		{subscription.TierPro, FeatureTeamMembers, false},
		{subscription.TierBusiness, FeatureInvoicing, true},
		{subscription.TierBusiness, FeatureReports, true},
		{subscription.TierBusiness, FeaturePrioritySupport, true},
	}

	for _, tt := range tests {
		if got := HasFeature(tt.tier, tt.feature); got != tt.want {
			t.Errorf("HasFeature(%v, %v) = %v, want %v", tt.tier, tt.feature, got, tt.want)
		}
	}
}

func TestPlanFor_UnknownTierFallsToFree(t *testing.T) {
	p := PlanFor(subscription.Tier("platinum"))
	if p.Tier != subscription.TierFree {
		t.Errorf("PlanFor(unknown).Tier = %v, want free", p.Tier)
	}
}

func TestPlanFor_ReturnsCopy(t *testing.T) {
	p := PlanFor(subscription.TierFree)
	p.Ceilings[ResourceInvoice] = 1000000
	p.Features[0] = Feature("everything")

	if got := Ceiling(subscription.TierFree, ResourceInvoice); got != 5 {
		t.Errorf("Ceiling() = %d after caller mutation, table was corrupted", got)
	}
	if !HasFeature(subscription.TierFree, FeatureInvoicing) {
		t.Error("HasFeature() lost a feature after caller mutation")
	}
}

func TestEngine_FeaturesFor(t *testing.T) {
	e, subs := newTestEngine()
	subscribe(subs, "biz-user", subscription.TierBusiness, true)

	free := e.FeaturesFor(context.Background(), "stranger")
	if len(free) != 3 {
		t.Errorf("free feature count = %d, want 3", len(free))
	}

	biz := e.FeaturesFor(context.Background(), "biz-user")
	if len(biz) != 10 {
		t.Errorf("business feature count = %d, want 10", len(biz))
	}
}
