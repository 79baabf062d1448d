package compose

import (
	"strings"
	"unicode/utf8"

	"tarotvision/internal/logging"
)

// instructionReserveFraction of the hard cap is held back for the trailing
// reading-instruction block, bounded below by instructionReserveFloor.
const (
	instructionReserveFraction = 10 // hardCap / 10
	instructionReserveFloor    = 150

	// minRegionTokens is the smallest partial region worth keeping; below
	// this the region is dropped rather than reduced to a stub.
	minRegionTokens = 12

	// sectionOverhead is the conservative per-section token allowance for
	// the joining separator.
	sectionOverhead = 1
)

// secondaryPriority orders the secondary document's regions for budget
// allocation, highest priority first. The trailing instruction block is
// handled separately via its reserve.
var secondaryPriority = []SectionID{
	SectionQuestionIntent,
	SectionCardDetails,
	SectionSpreadGeometry,
	SectionAstroForecast,
	SectionAmbientContext,
	SectionPersonalization,
	SectionReferencePassages,
	SectionVisionDiagnostics,
}

// EnforceHardCap guarantees the combined cost of both documents fits the
// hard cap. It always runs, independent of whether slimming is enabled, and
// never panics outward: any internal failure falls back to plain prefix
// truncation. Returns the possibly-trimmed documents, whether anything was
// cut, and whether the primary collapsed to the minimal safety document.
func EnforceHardCap(primary, secondary Document, hardCap int) (outPrimary, outSecondary Document, truncated, safety bool) {
	timer := logging.StartTimer(logging.CategoryCompose, "EnforceHardCap")
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryCompose).Error(
				"Hard-cap truncation failed internally, falling back to prefix truncation: %v", r)
			outPrimary, outSecondary = prefixFallback(primary, secondary, hardCap)
			truncated = true
			safety = false
		}
	}()

	if hardCap < 0 {
		hardCap = 0
	}

	if EstimateTokens(primary.Text)+EstimateTokens(secondary.Text) <= hardCap {
		return primary, secondary, false, false
	}

	reserve := hardCap / instructionReserveFraction
	if reserve < instructionReserveFloor {
		reserve = instructionReserveFloor
	}
	if reserve > hardCap {
		reserve = hardCap
	}

	// Secondary first: it absorbs whatever the intact primary leaves over,
	// but never less than the instruction reserve — and never so much that
	// primary critical sections which fit the cap would lose their share.
	criticalPrimaryCost := 0
	for _, sec := range primary.Sections {
		if sec.Criticality == CriticalityCritical {
			criticalPrimaryCost += EstimateTokens(sec.Text) + sectionOverhead
		}
	}

	secondaryBudget := hardCap - EstimateTokens(primary.Text)
	if secondaryBudget < reserve {
		secondaryBudget = reserve
	}
	if criticalPrimaryCost <= hardCap && secondaryBudget > hardCap-criticalPrimaryCost {
		secondaryBudget = hardCap - criticalPrimaryCost
	}
	outSecondary = truncateSecondary(secondary, secondaryBudget, reserve)

	// Primary gets the true remainder; critical sections survive verbatim
	// unless they alone exceed it.
	primaryBudget := hardCap - EstimateTokens(outSecondary.Text)
	outPrimary, safety = truncatePrimary(primary, primaryBudget)

	// Invariant guard: the allocation above is conservative, but the cap is
	// absolute. Any residual overage is removed with a plain prefix cut.
	if EstimateTokens(outPrimary.Text)+EstimateTokens(outSecondary.Text) > hardCap {
		outPrimary, outSecondary = prefixFallback(outPrimary, outSecondary, hardCap)
	}

	return outPrimary, outSecondary, true, safety
}

// truncateSecondary allocates the budget across the secondary document's
// labeled regions in priority order, reserving a minimum share for the
// trailing instruction block, dropping lower-priority regions first, and
// binary-search trimming the region that only partially fits.
func truncateSecondary(doc Document, budget, reserve int) Document {
	if EstimateTokens(doc.Text) <= budget {
		return doc
	}

	var instructions *RenderedSection
	byID := make(map[SectionID]RenderedSection, len(doc.Sections))
	for i := range doc.Sections {
		sec := doc.Sections[i]
		if sec.ID == SectionReadingInstructions {
			instructions = &doc.Sections[i]
			continue
		}
		byID[sec.ID] = sec
	}

	instructionAlloc := 0
	if instructions != nil {
		instructionAlloc = reserve
		if c := EstimateTokens(instructions.Text) + sectionOverhead; c < instructionAlloc {
			instructionAlloc = c
		}
		if instructionAlloc > budget {
			instructionAlloc = budget
		}
	}

	remainder := budget - instructionAlloc
	kept := make(map[SectionID]string)

	for _, id := range secondaryPriority {
		sec, ok := byID[id]
		if !ok {
			continue
		}
		cost := EstimateTokens(sec.Text) + sectionOverhead
		switch {
		case cost <= remainder:
			kept[id] = sec.Text
			remainder -= cost
		case remainder > minRegionTokens:
			kept[id] = trimToPrefix(sec.Text, remainder-sectionOverhead)
			remainder = 0
		default:
			logging.ComposeDebug("Dropping secondary region %s (no budget left)", id)
		}
	}

	// The instruction block takes its reserve plus anything unspent. Suffix
	// trimming keeps the tail, which is where its weight lives.
	if instructions != nil {
		allowed := instructionAlloc + remainder - sectionOverhead
		if allowed < 0 {
			allowed = 0
		}
		text := instructions.Text
		if EstimateTokens(text) > allowed {
			text = trimToSuffix(text, allowed)
		}
		if text != "" {
			kept[SectionReadingInstructions] = text
		}
	}

	// Rebuild in declared order.
	sections := make([]RenderedSection, 0, len(kept))
	for _, sec := range doc.Sections {
		text, ok := kept[sec.ID]
		if !ok || text == "" {
			continue
		}
		sections = append(sections, RenderedSection{ID: sec.ID, Criticality: sec.Criticality, Text: text})
	}

	return Document{Text: rebuildText(sections), Sections: sections}
}

// truncatePrimary preserves every critical section verbatim and fills the
// remainder with normal sections in declared order. Only when the critical
// sections alone exceed the budget does it fall back to the minimal safety
// document: critical sections only, trimmed from the lowest-priority
// critical first.
func truncatePrimary(doc Document, budget int) (Document, bool) {
	if budget < 0 {
		budget = 0
	}
	if EstimateTokens(doc.Text) <= budget {
		return doc, false
	}

	criticalCost := 0
	for _, sec := range doc.Sections {
		if sec.Criticality == CriticalityCritical {
			criticalCost += EstimateTokens(sec.Text) + sectionOverhead
		}
	}

	if criticalCost > budget {
		return safetyDocument(doc, budget), true
	}

	remainder := budget - criticalCost
	sections := make([]RenderedSection, 0, len(doc.Sections))
	for _, sec := range doc.Sections {
		if sec.Criticality == CriticalityCritical {
			sections = append(sections, sec)
			continue
		}
		cost := EstimateTokens(sec.Text) + sectionOverhead
		switch {
		case cost <= remainder:
			sections = append(sections, sec)
			remainder -= cost
		case remainder > minRegionTokens:
			trimmed := sec
			trimmed.Text = trimToPrefix(sec.Text, remainder-sectionOverhead)
			sections = append(sections, trimmed)
			remainder = 0
		default:
			logging.ComposeDebug("Dropping primary section %s (no budget left)", sec.ID)
		}
	}

	return Document{Text: rebuildText(sections), Sections: sections}, false
}

// safetyDocument returns the minimal safety document: critical sections
// only, in declared priority order, trimmed from the lowest-priority
// critical section first until the budget holds.
func safetyDocument(doc Document, budget int) Document {
	var criticals []RenderedSection
	for _, sec := range doc.Sections {
		if sec.Criticality == CriticalityCritical {
			criticals = append(criticals, sec)
		}
	}

	for len(criticals) > 0 {
		total := 0
		for _, sec := range criticals {
			total += EstimateTokens(sec.Text) + sectionOverhead
		}
		if total <= budget {
			break
		}

		// Trim the last (lowest-priority) critical; drop it entirely when
		// trimming would leave a useless stub.
		last := len(criticals) - 1
		overage := total - budget
		lastCost := EstimateTokens(criticals[last].Text)
		if lastCost-overage > minRegionTokens {
			criticals[last].Text = trimToPrefix(criticals[last].Text, lastCost-overage)
			break
		}
		criticals = criticals[:last]
	}

	out := Document{Text: rebuildText(criticals), Sections: criticals}

	// A single oversized critical still has to fit.
	if EstimateTokens(out.Text) > budget {
		out.Text = trimToPrefix(out.Text, budget)
		if len(out.Sections) > 0 {
			out.Sections = out.Sections[:1]
			out.Sections[0].Text = out.Text
		}
	}

	return out
}

// prefixFallback is the last-resort path: keep as much of the primary as
// fits, then as much of the secondary as remains.
func prefixFallback(primary, secondary Document, hardCap int) (Document, Document) {
	p := primary.Text
	if EstimateTokens(p) > hardCap {
		p = trimToPrefix(p, hardCap)
	}
	remaining := hardCap - EstimateTokens(p)
	s := ""
	if remaining > 0 {
		s = secondary.Text
		if EstimateTokens(s) > remaining {
			s = trimToPrefix(s, remaining)
		}
	}
	return Document{Text: p}, Document{Text: s}
}

// trimToPrefix returns the longest prefix whose estimated cost fits the
// budget, found by binary search against the estimator, preferring to cut at
// a paragraph boundary past the midpoint. Never splits a UTF-8 rune.
func trimToPrefix(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if EstimateTokens(text[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	cut := runeBoundaryBefore(text, lo)
	prefix := text[:cut]

	if idx := strings.LastIndex(prefix, "\n\n"); idx > cut/2 {
		prefix = prefix[:idx]
	}
	return prefix
}

// trimToSuffix is the suffix analog of trimToPrefix, for trailing content
// where the end of the text matters more than the start.
func trimToSuffix(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if EstimateTokens(text[len(text)-mid:]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	start := runeBoundaryAfter(text, len(text)-lo)
	suffix := text[start:]

	if idx := strings.Index(suffix, "\n\n"); idx >= 0 && idx < len(suffix)/2 {
		suffix = suffix[idx+2:]
	}
	return suffix
}

// runeBoundaryBefore returns the largest rune boundary <= i.
func runeBoundaryBefore(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeBoundaryAfter returns the smallest rune boundary >= i.
func runeBoundaryAfter(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
