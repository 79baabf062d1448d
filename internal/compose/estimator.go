package compose

// EstimateTokens estimates the token count for text using the chars/4
// approximation, rounded up. Deterministic and monotonically non-decreasing
// in text length; used both for whole documents and as the oracle for
// binary-search trimming. A real tokenizer is deliberately not involved.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// CostEstimate summarizes the resource cost of an assembled reading against
// its budget policy.
type CostEstimate struct {
	Primary    int  `json:"primary"`
	Secondary  int  `json:"secondary"`
	Total      int  `json:"total"`
	Budget     int  `json:"budget"` // soft budget, 0 when slimming disabled
	HardCap    int  `json:"hard_cap"`
	OverBudget bool `json:"over_budget"`
}

// estimateCost builds a CostEstimate for a primary/secondary document pair.
func estimateCost(primary, secondary Document, policy BudgetPolicy) CostEstimate {
	p := EstimateTokens(primary.Text)
	s := EstimateTokens(secondary.Text)
	est := CostEstimate{
		Primary:   p,
		Secondary: s,
		Total:     p + s,
		Budget:    policy.SoftBudget,
		HardCap:   policy.HardCap,
	}
	est.OverBudget = policy.SoftBudget > 0 && est.Total > policy.SoftBudget
	return est
}
