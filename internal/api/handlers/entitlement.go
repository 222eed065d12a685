package handlers

import (
	"net/http"
	"strconv"

	"github.com/involy/involy/internal/api/dto"
	"github.com/involy/involy/internal/api/middleware"
	"github.com/involy/involy/internal/domain/subscription"
	"github.com/involy/involy/internal/entitlement"
	"github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/utils"
)

// EntitlementHandler exposes the tier table and resolved entitlements
type EntitlementHandler struct {
	engine *entitlement.Engine
	logger *logger.Logger
}

// NewEntitlementHandler creates a new entitlement handler
func NewEntitlementHandler(engine *entitlement.Engine, log *logger.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		engine: engine,
		logger: log,
	}
}

// ListPlans returns the static subscription tier table
func (h *EntitlementHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	tiers := []subscription.Tier{
		subscription.TierFree,
		subscription.TierPro,
		subscription.TierBusiness,
	}

	plans := make([]dto.PlanDTO, 0, len(tiers))
	for _, tier := range tiers {
		plans = append(plans, toPlanDTO(entitlement.PlanFor(tier)))
	}

	utils.WriteSuccess(w, http.StatusOK, plans)
}

// GetEntitlements returns the resolved entitlements for the authed user
func (h *EntitlementHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	tier := h.engine.TierFor(r.Context(), userID)
	plan := entitlement.PlanFor(tier)

	utils.WriteSuccess(w, http.StatusOK, dto.EntitlementDTO{
		Tier:     string(tier),
		Features: featureNames(plan.Features),
		Ceilings: ceilingMap(plan),
	})
}

// CanCreate answers the advisory creation check for a resource kind. The
// backend re-enforces the same ceiling at the point of persistence.
func (h *EntitlementHandler) CanCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	kind := r.URL.Query().Get("kind")
	if kind != string(entitlement.ResourceInvoice) && kind != string(entitlement.ResourceClient) {
		utils.WriteError(w, errors.BadRequest("Unknown resource kind"))
		return
	}

	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < 0 {
		utils.WriteError(w, errors.BadRequest("count must be a non-negative integer"))
		return
	}

	allowed := h.engine.CanCreate(r.Context(), userID, entitlement.Resource(kind), count)
	utils.WriteSuccess(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func toPlanDTO(p entitlement.Plan) dto.PlanDTO {
	return dto.PlanDTO{
		Tier:     string(p.Tier),
		Features: featureNames(p.Features),
		Ceilings: ceilingMap(p),
	}
}

func featureNames(features []entitlement.Feature) []string {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, string(f))
	}
	return names
}

func ceilingMap(p entitlement.Plan) map[string]int {
	ceilings := make(map[string]int, len(p.Ceilings))
	for kind, c := range p.Ceilings {
		ceilings[string(kind)] = c
	}
	return ceilings
}
