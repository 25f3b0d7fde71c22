package tenant

// Plan prices in cents per month. Trial is free until it expires.
const (
	PriceTrialCents      int64 = 0
	PriceProCents        int64 = 9700
	PriceEnterpriseCents int64 = 29700
)

// PriceCents returns the monthly price for a plan in cents.
// Unknown plans price at 0.
func PriceCents(p Plan) int64 {
	switch p {
	case PlanPro:
		return PriceProCents
	case PlanEnterprise:
		return PriceEnterpriseCents
	default:
		return PriceTrialCents
	}
}

// allowedTransitions is the plan upgrade table. Downgrades and no-op
// transitions are rejected.
var allowedTransitions = map[Plan][]Plan{
	PlanTrial: {PlanPro, PlanEnterprise},
	PlanPro:   {PlanEnterprise},
}

// CanTransition reports whether a plan change from from to to is allowed.
func CanTransition(from, to Plan) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
