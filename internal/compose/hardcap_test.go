package compose

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDoc(sections ...RenderedSection) Document {
	return Document{Text: rebuildText(sections), Sections: sections}
}

func block(n int) string {
	// Paragraph-structured filler so boundary-preferring trims have
	// boundaries to find.
	para := strings.Repeat("the cards on the table speak plainly. ", 5)
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(para)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()[:n])
}

func testPrimary() Document {
	return makeDoc(
		RenderedSection{ID: SectionReaderIdentity, Criticality: CriticalityNormal, Text: block(800)},
		RenderedSection{ID: SectionEthicsDirectives, Criticality: CriticalityCritical, Text: ethicsText},
		RenderedSection{ID: SectionImageryGuidance, Criticality: CriticalityNormal, Text: block(600)},
		RenderedSection{ID: SectionResponseDirectives, Criticality: CriticalityCritical, Text: responseDirectivesText},
	)
}

func testSecondary(passageChars int) Document {
	return makeDoc(
		RenderedSection{ID: SectionQuestionIntent, Criticality: CriticalityNormal, Text: block(300)},
		RenderedSection{ID: SectionCardDetails, Criticality: CriticalityNormal, Text: block(500)},
		RenderedSection{ID: SectionReferencePassages, Criticality: CriticalityNormal, Text: block(passageChars)},
		RenderedSection{ID: SectionVisionDiagnostics, Criticality: CriticalityNormal, Text: block(400)},
		RenderedSection{ID: SectionReadingInstructions, Criticality: CriticalityCritical, Text: block(300)},
	)
}

func totalCost(p, s Document) int {
	return EstimateTokens(p.Text) + EstimateTokens(s.Text)
}

func TestEnforceHardCapUnderCap(t *testing.T) {
	primary := testPrimary()
	secondary := testSecondary(1000)

	outP, outS, truncated, safety := EnforceHardCap(primary, secondary, 100000)
	assert.False(t, truncated)
	assert.False(t, safety)
	if diff := cmp.Diff(primary, outP); diff != "" {
		t.Errorf("primary changed under cap (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(secondary, outS); diff != "" {
		t.Errorf("secondary changed under cap (-want +got):\n%s", diff)
	}
}

func TestEnforceHardCapOverCap(t *testing.T) {
	primary := testPrimary()
	secondary := testSecondary(12000) // ~5000 total tokens
	require.Greater(t, totalCost(primary, secondary), 3000)

	outP, outS, truncated, safety := EnforceHardCap(primary, secondary, 3000)
	assert.True(t, truncated)
	assert.False(t, safety)
	assert.LessOrEqual(t, totalCost(outP, outS), 3000)

	// Critical sections of the primary survive verbatim.
	assert.Contains(t, outP.Text, ethicsText)
	assert.Contains(t, outP.Text, responseDirectivesText)
	assert.Equal(t, []string{
		string(SectionEthicsDirectives),
		string(SectionResponseDirectives),
	}, criticalIDs(outP))
}

func TestEnforceHardCapRegionPriority(t *testing.T) {
	// With a tight cap the truncator drops low-priority secondary regions
	// (diagnostics, passages) before high-priority ones (question, cards).
	primary := makeDoc(
		RenderedSection{ID: SectionEthicsDirectives, Criticality: CriticalityCritical, Text: ethicsText},
	)
	secondary := testSecondary(6000)

	hardCap := EstimateTokens(primary.Text) + 700
	outP, outS, truncated, _ := EnforceHardCap(primary, secondary, hardCap)
	require.True(t, truncated)
	assert.LessOrEqual(t, totalCost(outP, outS), hardCap)

	assert.True(t, sectionUsed(outS, SectionQuestionIntent))
	assert.False(t, sectionUsed(outS, SectionVisionDiagnostics))
}

func TestEnforceHardCapInstructionReserve(t *testing.T) {
	// Even when earlier regions consume all priority budget, the trailing
	// instruction block keeps its reserved share.
	primary := makeDoc(
		RenderedSection{ID: SectionEthicsDirectives, Criticality: CriticalityCritical, Text: ethicsText},
	)
	secondary := testSecondary(20000)

	hardCap := EstimateTokens(primary.Text) + 2000
	_, outS, truncated, _ := EnforceHardCap(primary, secondary, hardCap)
	require.True(t, truncated)
	assert.True(t, sectionUsed(outS, SectionReadingInstructions),
		"trailing instruction block must survive via its reserve")

	// And it stays last.
	require.NotEmpty(t, outS.Sections)
	assert.Equal(t, SectionReadingInstructions, outS.Sections[len(outS.Sections)-1].ID)
}

func TestEnforceHardCapCriticalsSurviveWhenTheyFit(t *testing.T) {
	// The cap sits just above the combined cost of every critical section
	// (ethics, response directives, trailing instructions) while a populated
	// secondary competes for the same budget. The criticals must come
	// through verbatim with no safety fallback: the secondary's normal
	// regions absorb the entire cut.
	primary := testPrimary()
	secondary := testSecondary(2000)

	instructions := secondary.Sections[len(secondary.Sections)-1]
	require.Equal(t, SectionReadingInstructions, instructions.ID)

	hardCap := EstimateTokens(ethicsText) +
		EstimateTokens(responseDirectivesText) +
		EstimateTokens(instructions.Text) + 20

	outP, outS, truncated, safety := EnforceHardCap(primary, secondary, hardCap)
	require.True(t, truncated)
	assert.False(t, safety)
	assert.LessOrEqual(t, totalCost(outP, outS), hardCap)

	assert.Contains(t, outP.Text, ethicsText)
	assert.Contains(t, outP.Text, responseDirectivesText)
	assert.Equal(t, []string{
		string(SectionEthicsDirectives),
		string(SectionResponseDirectives),
	}, criticalIDs(outP))
}

func TestEnforceHardCapCriticalsSurviveAcrossCaps(t *testing.T) {
	// Sweep caps from just above the critical cost upward: as long as the
	// primary's criticals fit, they are never trimmed.
	primary := testPrimary()
	criticalCost := EstimateTokens(ethicsText) + EstimateTokens(responseDirectivesText)

	for _, slack := range []int{90, 150, 400, 1000} {
		hardCap := criticalCost + slack
		for _, passageChars := range []int{100, 4000, 16000} {
			secondary := testSecondary(passageChars)
			outP, outS, _, safety := EnforceHardCap(primary, secondary, hardCap)
			assert.False(t, safety, "cap=%d passages=%d", hardCap, passageChars)
			assert.Contains(t, outP.Text, ethicsText, "cap=%d passages=%d", hardCap, passageChars)
			assert.Contains(t, outP.Text, responseDirectivesText, "cap=%d passages=%d", hardCap, passageChars)
			assert.LessOrEqual(t, totalCost(outP, outS), hardCap, "cap=%d passages=%d", hardCap, passageChars)
		}
	}
}

func TestEnforceHardCapSafetyDocument(t *testing.T) {
	primary := testPrimary()
	secondary := testSecondary(2000)

	// Cap below what the criticals alone need.
	criticalTokens := EstimateTokens(ethicsText) + EstimateTokens(responseDirectivesText)
	hardCap := criticalTokens / 2

	outP, outS, truncated, safety := EnforceHardCap(primary, secondary, hardCap)
	assert.True(t, truncated)
	assert.True(t, safety)
	assert.LessOrEqual(t, totalCost(outP, outS), hardCap)

	// Only critical sections remain in the primary.
	for _, sec := range outP.Sections {
		assert.Equal(t, CriticalityCritical, sec.Criticality)
	}
}

func TestEnforceHardCapNeverExceeds(t *testing.T) {
	primary := testPrimary()
	for _, hardCap := range []int{0, 1, 10, 50, 150, 400, 1000, 2500, 5000, 10000} {
		for _, passageChars := range []int{100, 4000, 16000} {
			secondary := testSecondary(passageChars)
			outP, outS, _, _ := EnforceHardCap(primary, secondary, hardCap)
			assert.LessOrEqual(t, totalCost(outP, outS), hardCap,
				"cap=%d passages=%d", hardCap, passageChars)
		}
	}
}

func TestEnforceHardCapSlimmingDisabledStillCapped(t *testing.T) {
	// The cap binds even when the degradation pipeline never ran.
	primary := testPrimary()
	secondary := testSecondary(16000) // ~4500+ tokens
	outP, outS, truncated, _ := EnforceHardCap(primary, secondary, 4000)
	assert.True(t, truncated)
	assert.LessOrEqual(t, totalCost(outP, outS), 4000)
}

func TestTrimToPrefix(t *testing.T) {
	t.Run("fits untouched", func(t *testing.T) {
		assert.Equal(t, "short", trimToPrefix("short", 100))
	})

	t.Run("zero budget", func(t *testing.T) {
		assert.Equal(t, "", trimToPrefix("anything", 0))
	})

	t.Run("result fits budget", func(t *testing.T) {
		text := block(4000)
		got := trimToPrefix(text, 100)
		assert.LessOrEqual(t, EstimateTokens(got), 100)
		assert.NotEmpty(t, got)
	})

	t.Run("prefers paragraph boundary", func(t *testing.T) {
		text := block(2000) + "\n\n" + block(2000)
		got := trimToPrefix(text, EstimateTokens(text)-10)
		assert.LessOrEqual(t, EstimateTokens(got), EstimateTokens(text)-10)
		assert.False(t, strings.HasSuffix(got, "\n"))
	})

	t.Run("never splits a rune", func(t *testing.T) {
		text := strings.Repeat("café au lait — énigme. ", 100)
		for budget := 1; budget < 50; budget += 3 {
			got := trimToPrefix(text, budget)
			assert.True(t, strings.HasPrefix(text, got))
			assert.Equal(t, got, string([]rune(got)), "budget %d produced invalid UTF-8", budget)
		}
	})
}

func TestTrimToSuffix(t *testing.T) {
	t.Run("keeps the tail", func(t *testing.T) {
		text := block(2000) + "\n\nfinal words that matter"
		got := trimToSuffix(text, 20)
		assert.True(t, strings.HasSuffix(text, got))
		assert.Contains(t, got, "matter")
	})

	t.Run("never splits a rune", func(t *testing.T) {
		text := strings.Repeat("über die Brücke. ", 100)
		for budget := 1; budget < 40; budget += 3 {
			got := trimToSuffix(text, budget)
			assert.True(t, strings.HasSuffix(text, got))
			assert.Equal(t, got, string([]rune(got)), "budget %d produced invalid UTF-8", budget)
		}
	})
}
