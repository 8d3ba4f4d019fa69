package plans

import (
	"context"
	"testing"

	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

func newTestResolver() *Resolver {
	cfg := config.PlansConfig{
		StandardPriceID:    "price_standard",
		AgencyPriceID:      "price_agency",
		StandardPhotoLimit: 50,
		AgencyPhotoLimit:   300,
		FreePhotoLimit:     5,
	}
	return NewResolver(cfg, logger.New(logger.Options{ServiceName: "plans-test"}))
}

func TestResolveUsesCatalog(t *testing.T) {
	resolver := newTestResolver()

	plan, source := resolver.Resolve(context.Background(), "price_agency")
	if source != SourceCatalog {
		t.Fatalf("expected catalog resolution, got %s", source)
	}
	if plan.Type != enums.PlanTypeAgency || plan.PhotosLimit != 300 {
		t.Fatalf("unexpected plan %s/%d", plan.Type, plan.PhotosLimit)
	}
}

func TestResolveHeuristicFallback(t *testing.T) {
	resolver := newTestResolver()

	plan, source := resolver.Resolve(context.Background(), "price_new_agency_annual")
	if source != SourceHeuristic {
		t.Fatalf("expected heuristic resolution, got %s", source)
	}
	if plan.Type != enums.PlanTypeAgency {
		t.Fatalf("agency substring should map to agency, got %s", plan.Type)
	}

	plan, source = resolver.Resolve(context.Background(), "price_totally_unknown")
	if source != SourceHeuristic {
		t.Fatalf("expected heuristic resolution, got %s", source)
	}
	if plan.Type != enums.PlanTypeStandard || plan.PhotosLimit != 50 {
		t.Fatalf("unknown price should default to standard, got %s/%d", plan.Type, plan.PhotosLimit)
	}
}

func TestPlanForUnknownTierDefaultsToStandard(t *testing.T) {
	resolver := newTestResolver()

	plan := resolver.PlanFor(enums.PlanType("legacy"))
	if plan.Type != enums.PlanTypeStandard {
		t.Fatalf("expected standard fallback, got %s", plan.Type)
	}
}

func TestFreePlan(t *testing.T) {
	resolver := newTestResolver()

	plan := resolver.FreePlan()
	if plan.Type != enums.PlanTypeFree || plan.PhotosLimit != 5 {
		t.Fatalf("unexpected free plan %s/%d", plan.Type, plan.PhotosLimit)
	}
}
