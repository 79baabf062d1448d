package compose

import (
	"tarotvision/internal/logging"
	"tarotvision/internal/rank"
)

// DegradationStep is one named, idempotent transformation over the control
// state. Apply returns the candidate state and whether it differs from the
// input; a false return marks the step a no-op for that state.
type DegradationStep struct {
	Name  string
	Apply func(st ControlState) (ControlState, bool)
}

// degradationSteps is the fixed pipeline order, lowest-impact first. Cheap,
// least narratively important content is sacrificed before structurally
// important content; the reference pool shrinks gradually before it is
// summarized and only then dropped outright.
func degradationSteps() []DegradationStep {
	return []DegradationStep{
		{
			Name: "drop-minor-imagery",
			Apply: func(st ControlState) (ControlState, bool) {
				if st.ImageryDetail == ImageryMinimal {
					return st, false
				}
				st.ImageryDetail = ImageryMinimal
				return st, true
			},
		},
		{
			Name: "drop-forecast",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludeForecast {
					return st, false
				}
				st.IncludeForecast = false
				return st, true
			},
		},
		{
			Name: "drop-ambient",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludeAmbient {
					return st, false
				}
				st.IncludeAmbient = false
				return st, true
			},
		},
		{
			Name: "trim-passages",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludePassages {
					return st, false
				}
				next := rank.TrimTarget(st.PassageTarget, st.originalTarget)
				if next >= st.PassageTarget {
					return st, false
				}
				st.PassageTarget = next
				return st, true
			},
		},
		{
			Name: "summarize-passages",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludePassages || st.SummarizePassages {
					return st, false
				}
				st.SummarizePassages = true
				return st, true
			},
		},
		{
			Name: "drop-geometry",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludeGeometry {
					return st, false
				}
				st.IncludeGeometry = false
				return st, true
			},
		},
		{
			Name: "drop-diagnostics",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludeDiagnostics {
					return st, false
				}
				st.IncludeDiagnostics = false
				return st, true
			},
		},
		{
			Name: "drop-passages",
			Apply: func(st ControlState) (ControlState, bool) {
				if !st.IncludePassages {
					return st, false
				}
				st.IncludePassages = false
				return st, true
			},
		},
	}
}

// StepNames returns the declared pipeline order. Telemetry consumers use it
// to interpret applied-step lists.
func StepNames() []string {
	steps := degradationSteps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// buildFunc re-assembles both documents for a candidate state.
type buildFunc func(st ControlState) (primary, secondary Document)

// DegradationController walks the step list, re-assembling after each
// applied step, until cost fits the soft budget or the list is exhausted.
type DegradationController struct {
	steps []DegradationStep
}

// NewDegradationController creates a controller with the declared pipeline.
func NewDegradationController() *DegradationController {
	return &DegradationController{steps: degradationSteps()}
}

// Run applies degradation steps in order while the assembled cost exceeds
// the soft budget. Each step is applied at most once; a step that is a no-op
// for the current state is skipped; a candidate whose cost is not lower than
// the current cost is discarded without being recorded, so the committed
// state never regresses and cost is monotonically non-increasing. Run never
// fails; with slimming disabled it returns the input untouched.
func (c *DegradationController) Run(
	build buildFunc,
	st ControlState,
	policy BudgetPolicy,
) (ControlState, Document, Document, []string) {
	timer := logging.StartTimer(logging.CategoryCompose, "DegradationController.Run")
	defer timer.Stop()

	primary, secondary := build(st)
	if !policy.SlimmingEnabled() {
		return st, primary, secondary, nil
	}

	cost := EstimateTokens(primary.Text) + EstimateTokens(secondary.Text)
	var applied []string

	for _, step := range c.steps {
		if cost <= policy.SoftBudget {
			break
		}

		candidate, changed := step.Apply(st)
		if !changed {
			continue
		}

		candPrimary, candSecondary := build(candidate)
		candCost := EstimateTokens(candPrimary.Text) + EstimateTokens(candSecondary.Text)
		if candCost >= cost {
			logging.ComposeDebug("Step %s did not reduce cost (%d -> %d), discarded",
				step.Name, cost, candCost)
			continue
		}

		st = candidate
		primary, secondary = candPrimary, candSecondary
		cost = candCost
		applied = append(applied, step.Name)

		logging.ComposeDebug("Applied step %s, cost now %d (soft budget %d)",
			step.Name, cost, policy.SoftBudget)
	}

	return st, primary, secondary, applied
}
