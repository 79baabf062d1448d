// Package compose assembles the multi-section reading prompt for a tarot
// draw, estimates its token cost, and degrades optional content in a fixed
// order until the document fits its budget. A hard cap is enforced on every
// path; ethics and response directives survive all but the most extreme
// truncation.
package compose

import "fmt"

// SectionID identifies a content section in one of the two documents.
type SectionID string

// Primary (system) document sections, in declared order.
const (
	SectionReaderIdentity     SectionID = "reader-identity"
	SectionEthicsDirectives   SectionID = "ethics-directives"
	SectionDeckStyle          SectionID = "deck-style"
	SectionImageryGuidance    SectionID = "imagery-guidance"
	SectionResponseDirectives SectionID = "response-directives"
)

// Secondary (user) document sections, in declared order. The reading
// instruction block is trailing on purpose: models weight trailing
// instructions heavily, so the truncator reserves budget for it.
const (
	SectionQuestionIntent      SectionID = "question-intent"
	SectionCardDetails         SectionID = "card-details"
	SectionSpreadGeometry      SectionID = "spread-geometry"
	SectionAstroForecast       SectionID = "astro-forecast"
	SectionAmbientContext      SectionID = "ambient-context"
	SectionPersonalization     SectionID = "personalization"
	SectionReferencePassages   SectionID = "reference-passages"
	SectionVisionDiagnostics   SectionID = "vision-diagnostics"
	SectionReadingInstructions SectionID = "reading-instructions"
)

// Criticality tags how hard a section must be protected during truncation.
type Criticality int

const (
	// CriticalityNormal sections may be trimmed or dropped to fit budget.
	CriticalityNormal Criticality = iota

	// CriticalityCritical sections must appear in full in the final output
	// unless the critical sections alone exceed the hard cap.
	CriticalityCritical
)

// String returns the string representation of Criticality.
func (c Criticality) String() string {
	switch c {
	case CriticalityNormal:
		return "normal"
	case CriticalityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RenderFunc produces the text of one section for a given control state.
// Returning an empty string (or an error) marks the section absent.
type RenderFunc func(st *ControlState) (string, error)

// ContentSection is one named content block with its survival tag and
// renderer. Sections are assembled in slice order.
type ContentSection struct {
	ID          SectionID
	Criticality Criticality
	Render      RenderFunc
}

// ImageryDetail selects how verbosely card imagery is described.
type ImageryDetail string

const (
	// ImageryFull includes minor/supplementary imagery details.
	ImageryFull ImageryDetail = "full"

	// ImageryMinimal keeps only the load-bearing symbols.
	ImageryMinimal ImageryDetail = "minimal"
)

// ControlState is the explicit record of which optional content categories
// are enabled for one assembly run. Renderers read it; only the degradation
// controller produces new states, and a committed state never regresses
// within a run. There is no process-wide mode flag; everything rendering
// needs to know travels here.
type ControlState struct {
	ImageryDetail      ImageryDetail
	IncludeForecast    bool
	IncludeAmbient     bool
	IncludeGeometry    bool
	IncludeDiagnostics bool
	IncludePassages    bool
	SummarizePassages  bool

	// PassageTarget is how many ranked passages the reference section
	// renders. The trim step lowers it toward 1.
	PassageTarget int

	// originalTarget is the target the run started with; TrimTarget needs
	// it to compute the halfway point.
	originalTarget int
}

// DefaultControlState returns the initial state with every optional toggle
// on and the passage target set.
func DefaultControlState(passageTarget int) ControlState {
	if passageTarget < 1 {
		passageTarget = 1
	}
	return ControlState{
		ImageryDetail:      ImageryFull,
		IncludeForecast:    true,
		IncludeAmbient:     true,
		IncludeGeometry:    true,
		IncludeDiagnostics: true,
		IncludePassages:    true,
		SummarizePassages:  false,
		PassageTarget:      passageTarget,
		originalTarget:     passageTarget,
	}
}

// Validate checks the state once at assembly entry; renderers can then
// trust it without re-checking.
func (st *ControlState) Validate() error {
	switch st.ImageryDetail {
	case ImageryFull, ImageryMinimal:
	default:
		return fmt.Errorf("invalid imagery detail level %q", st.ImageryDetail)
	}
	if st.PassageTarget < 1 {
		return fmt.Errorf("passage target must be at least 1, got %d", st.PassageTarget)
	}
	if st.originalTarget < st.PassageTarget {
		return fmt.Errorf("passage target %d exceeds original target %d", st.PassageTarget, st.originalTarget)
	}
	return nil
}

// BudgetPolicy holds the resource ceilings for one assembly.
// SoftBudget == 0 means slimming is disabled; HardCap is always enforced.
type BudgetPolicy struct {
	SoftBudget int `json:"soft_budget" yaml:"soft_budget"`
	HardCap    int `json:"hard_cap" yaml:"hard_cap"`
}

// SlimmingEnabled reports whether the degradation pipeline should run.
func (p BudgetPolicy) SlimmingEnabled() bool {
	return p.SoftBudget > 0
}
