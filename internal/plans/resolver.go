package plans

import (
	"context"
	"strings"

	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// Plan carries the credit metadata attached to a tier.
type Plan struct {
	Type        enums.PlanType
	PhotosLimit int
	PriceID     string
}

// ResolutionSource records how a price id was mapped onto a plan.
type ResolutionSource string

const (
	SourceCatalog   ResolutionSource = "catalog"
	SourceHeuristic ResolutionSource = "heuristic"
)

// Resolver maps Stripe price ids onto the plan catalog. Unknown price ids fall
// back to a substring heuristic so a catalog gap degrades to a sane tier
// instead of dropping the event.
type Resolver struct {
	logg    *logger.Logger
	catalog map[string]Plan
	limits  map[enums.PlanType]int
}

// NewResolver builds the catalog from configuration.
func NewResolver(cfg config.PlansConfig, logg *logger.Logger) *Resolver {
	limits := map[enums.PlanType]int{
		enums.PlanTypeFree:     cfg.FreePhotoLimit,
		enums.PlanTypeTrial:    cfg.FreePhotoLimit,
		enums.PlanTypeStandard: cfg.StandardPhotoLimit,
		enums.PlanTypeAgency:   cfg.AgencyPhotoLimit,
	}

	catalog := map[string]Plan{}
	if id := strings.TrimSpace(cfg.StandardPriceID); id != "" {
		catalog[id] = Plan{Type: enums.PlanTypeStandard, PhotosLimit: limits[enums.PlanTypeStandard], PriceID: id}
	}
	if id := strings.TrimSpace(cfg.AgencyPriceID); id != "" {
		catalog[id] = Plan{Type: enums.PlanTypeAgency, PhotosLimit: limits[enums.PlanTypeAgency], PriceID: id}
	}

	return &Resolver{logg: logg, catalog: catalog, limits: limits}
}

// Resolve maps a price id onto a plan and reports whether the catalog or the
// heuristic produced the answer.
func (r *Resolver) Resolve(ctx context.Context, priceID string) (Plan, ResolutionSource) {
	id := strings.TrimSpace(priceID)
	if plan, ok := r.catalog[id]; ok {
		return plan, SourceCatalog
	}

	plan := r.heuristic(id)
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"price_id":      id,
			"resolved_plan": plan.Type.String(),
		})
		r.logg.Warn(logCtx, "price id missing from catalog; heuristic plan resolution used")
	}
	return plan, SourceHeuristic
}

// PlanFor returns the catalog allotment for a known tier.
func (r *Resolver) PlanFor(planType enums.PlanType) Plan {
	limit, ok := r.limits[planType]
	if !ok {
		planType = enums.PlanTypeStandard
		limit = r.limits[planType]
	}
	return Plan{Type: planType, PhotosLimit: limit}
}

// FreePlan returns the tier users land on when a subscription expires.
func (r *Resolver) FreePlan() Plan {
	return r.PlanFor(enums.PlanTypeFree)
}

func (r *Resolver) heuristic(priceID string) Plan {
	if strings.Contains(strings.ToLower(priceID), "agency") {
		return r.PlanFor(enums.PlanTypeAgency)
	}
	return r.PlanFor(enums.PlanTypeStandard)
}
