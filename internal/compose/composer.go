package compose

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tarotvision/internal/embedding"
	"tarotvision/internal/logging"
	"tarotvision/internal/rank"
)

// PassageSource resolves pattern keys (e.g. "the-tower:reversed") to raw
// reference passages. The sqlite-backed store satisfies this; tests use
// in-memory fakes.
type PassageSource interface {
	PassagesFor(ctx context.Context, keys []string, query string) ([]rank.Passage, error)
}

// Composer orchestrates one reading composition: validate, gather passages,
// rank, assemble, degrade, enforce the hard cap, and package telemetry. Both
// collaborators are optional; a nil source or engine simply narrows what the
// documents contain.
type Composer struct {
	passages PassageSource
	engine   embedding.Engine
}

// NewComposer creates a composer. Either collaborator may be nil.
func NewComposer(passages PassageSource, engine embedding.Engine) *Composer {
	return &Composer{passages: passages, engine: engine}
}

// Compose assembles the primary and secondary documents for one reading.
// The only fatal path is input validation; every downstream failure degrades
// and is recorded in the result's SourceUsage.
func (c *Composer) Compose(ctx context.Context, in ReadingInput) (*AssemblyResult, error) {
	timer := logging.StartTimer(logging.CategoryCompose, "Composer.Compose")
	defer timer.Stop()

	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reading input: %w", err)
	}
	in.normalize()

	usage := map[string]SourceUsage{
		SourceAstroForecast:   {Requested: len(in.AstroEvents) > 0},
		SourceAmbientContext:  {Requested: len(in.Ambient) > 0},
		SourceDiagnostics:     {Requested: len(in.Diagnostics) > 0},
		SourcePersonalization: {Requested: in.Personalization != ""},
		SourceGeometry:        {Requested: true},
	}

	pool, strategy := c.gatherPassages(ctx, &in, usage)

	st := DefaultControlState(in.PassageLimit)
	if err := st.Validate(); err != nil {
		return nil, err
	}

	primarySecs := primarySections(&in)
	secondarySecs := secondarySections(&in, pool)
	build := func(cand ControlState) (Document, Document) {
		return AssembleDocument(primarySecs, &cand), AssembleDocument(secondarySecs, &cand)
	}

	origPrimary, origSecondary := build(st)

	policy := in.Budget
	if !in.EnableSlimming {
		policy.SoftBudget = 0
	}

	controller := NewDegradationController()
	st, primary, secondary, applied := controller.Run(build, st, policy)

	primary, secondary, truncated, safety := EnforceHardCap(primary, secondary, policy.HardCap)

	cost := estimateCost(primary, secondary, policy)

	finalizeUsage(usage, secondary, len(pool), applied)

	result := &AssemblyResult{
		ReadingID:         uuid.NewString(),
		PrimaryText:       primary.Text,
		SecondaryText:     secondary.Text,
		Cost:              cost,
		AppliedSteps:      applied,
		PreservedCritical: recordPreservedCritical(primary, secondary, origPrimary, origSecondary),
		SourceUsage:       usage,
		Strategy:          strategy,
		Truncated:         truncated,
		SafetyFallback:    safety,
	}

	logging.Compose("Composed reading %s: cost=%d/%d, steps=%d, truncated=%v",
		result.ReadingID, cost.Total, policy.HardCap, len(applied), truncated)

	return result, nil
}

// gatherPassages resolves and ranks the reference pool, recording every
// degradation (missing source, failed retrieval, unavailable embedding
// service) in the usage map instead of failing.
func (c *Composer) gatherPassages(
	ctx context.Context,
	in *ReadingInput,
	usage map[string]SourceUsage,
) ([]rank.Passage, rank.Strategy) {
	requested := len(in.Passages) > 0 || len(in.PatternKeys) > 0

	pool := in.Passages
	if len(pool) == 0 && len(in.PatternKeys) > 0 {
		if c.passages == nil {
			usage[SourcePassages] = SourceUsage{Requested: true, SkippedReason: "no passage source configured"}
			usage[SourceSemanticScores] = SourceUsage{Requested: false}
			return nil, ""
		}
		fetched, err := c.passages.PassagesFor(ctx, in.PatternKeys, in.Question)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("Passage retrieval failed: %v", err)
			usage[SourcePassages] = SourceUsage{Requested: true, SkippedReason: fmt.Sprintf("retrieval failed: %v", err)}
			usage[SourceSemanticScores] = SourceUsage{Requested: false}
			return nil, ""
		}
		pool = fetched
	}

	if len(pool) == 0 {
		reason := ""
		if requested {
			reason = "no passages found for pattern keys"
		}
		usage[SourcePassages] = SourceUsage{Requested: requested, SkippedReason: reason}
		usage[SourceSemanticScores] = SourceUsage{Requested: false}
		return nil, ""
	}

	wantSemantic := in.SemanticScoring == SemanticOn ||
		(in.SemanticScoring == SemanticAuto && c.engine != nil)

	if wantSemantic {
		scored, err := scorePassages(ctx, c.engine, in.Question, pool, in.ScoreTimeout)
		if err != nil {
			// Never fatal: keyword-only ranking still produces a reading.
			logging.Get(logging.CategoryEmbedding).Warn(
				"Semantic scoring unavailable, falling back to keyword ranking: %v", err)
			usage[SourceSemanticScores] = SourceUsage{Requested: true, SkippedReason: fmt.Sprintf("fallback to keyword: %v", err)}
		} else {
			pool = scored
			usage[SourceSemanticScores] = SourceUsage{Requested: true, Used: true}
		}
	} else {
		usage[SourceSemanticScores] = SourceUsage{Requested: false}
	}

	ranked, strategy := rank.Rank(pool, in.PassageLimit)
	usage[SourcePassages] = SourceUsage{Requested: true, Used: len(ranked) > 0}
	return ranked, strategy
}

// finalizeUsage reconciles the usage map against what actually survived into
// the final secondary document.
func finalizeUsage(usage map[string]SourceUsage, secondary Document, poolSize int, applied []string) {
	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	mark := func(source string, id SectionID, dropStep string) {
		u := usage[source]
		if !u.Requested {
			return
		}
		u.Used = sectionUsed(secondary, id)
		if !u.Used && u.SkippedReason == "" {
			if appliedSet[dropStep] {
				u.SkippedReason = "degraded: " + dropStep
			} else {
				u.SkippedReason = "truncated at hard cap"
			}
		}
		usage[source] = u
	}

	mark(SourceAstroForecast, SectionAstroForecast, "drop-forecast")
	mark(SourceAmbientContext, SectionAmbientContext, "drop-ambient")
	mark(SourceDiagnostics, SectionVisionDiagnostics, "drop-diagnostics")
	mark(SourcePersonalization, SectionPersonalization, "")
	mark(SourceGeometry, SectionSpreadGeometry, "drop-geometry")

	if poolSize > 0 {
		mark(SourcePassages, SectionReferencePassages, "drop-passages")
	}
}
