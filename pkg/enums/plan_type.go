package enums

import "fmt"

// PlanType identifies a staging credit plan tier.
type PlanType string

const (
	PlanTypeFree     PlanType = "free"
	PlanTypeTrial    PlanType = "trial"
	PlanTypeStandard PlanType = "standard"
	PlanTypeAgency   PlanType = "agency"
)

var validPlanTypes = []PlanType{
	PlanTypeFree,
	PlanTypeTrial,
	PlanTypeStandard,
	PlanTypeAgency,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the tier is backed by a Stripe subscription.
func (p PlanType) IsPaid() bool {
	return p == PlanTypeStandard || p == PlanTypeAgency
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
