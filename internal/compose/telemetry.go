package compose

import (
	"tarotvision/internal/rank"
)

// SourceUsage records whether one content source was requested, whether it
// survived into the final output, and why it was skipped when it was not.
type SourceUsage struct {
	Requested     bool   `json:"requested"`
	Used          bool   `json:"used"`
	SkippedReason string `json:"skipped_reason,omitempty"`
}

// AssemblyResult is the full outcome of one reading composition: both
// documents, the cost report, and everything an operator needs to see when
// content quality was reduced. Degraded paths are observable here, never
// raised as errors.
type AssemblyResult struct {
	ReadingID     string `json:"reading_id"`
	PrimaryText   string `json:"primary_text"`
	SecondaryText string `json:"secondary_text"`

	Cost CostEstimate `json:"cost"`

	// AppliedSteps lists each degradation step that ran, at most once each,
	// in pipeline-declared order.
	AppliedSteps []string `json:"applied_steps"`

	// PreservedCritical lists critical sections whose full text survived
	// into the final output.
	PreservedCritical []string `json:"preserved_critical"`

	SourceUsage map[string]SourceUsage `json:"source_usage"`

	// Strategy is the ranking basis the passage pool was ordered under.
	Strategy rank.Strategy `json:"strategy,omitempty"`

	// Truncated reports whether the hard-cap truncator cut anything.
	Truncated bool `json:"truncated"`

	// SafetyFallback reports that the primary document collapsed to the
	// minimal safety document (critical sections only).
	SafetyFallback bool `json:"safety_fallback"`
}

// Source names used in SourceUsage.
const (
	SourcePassages        = "reference-passages"
	SourceSemanticScores  = "semantic-scores"
	SourceAstroForecast   = "astro-forecast"
	SourceAmbientContext  = "ambient-context"
	SourceDiagnostics     = "vision-diagnostics"
	SourcePersonalization = "personalization"
	SourceGeometry        = "spread-geometry"
)

// recordPreservedCritical compares final documents against the originals and
// lists every critical section that survived verbatim.
func recordPreservedCritical(finalPrimary, finalSecondary, origPrimary, origSecondary Document) []string {
	original := make(map[SectionID]string)
	for _, sec := range append(origPrimary.Sections, origSecondary.Sections...) {
		if sec.Criticality == CriticalityCritical {
			original[sec.ID] = sec.Text
		}
	}

	var preserved []string
	for _, sec := range append(finalPrimary.Sections, finalSecondary.Sections...) {
		if sec.Criticality != CriticalityCritical {
			continue
		}
		if full, ok := original[sec.ID]; ok && full == sec.Text {
			preserved = append(preserved, string(sec.ID))
		}
	}
	return preserved
}

// sectionUsed reports whether a section survived into a final document.
func sectionUsed(doc Document, id SectionID) bool {
	for _, sec := range doc.Sections {
		if sec.ID == id && sec.Text != "" {
			return true
		}
	}
	return false
}
