package compose

import (
	"fmt"
	"sort"
	"strings"

	"tarotvision/internal/rank"
)

// The renderers below produce deterministic prose from the reading input.
// They are the structural markers the truncator relies on: every section
// opens with a fixed "## " header line, emitted here rather than parsed back
// out of the text later.

const ethicsText = `## Ethics
You are not a substitute for professional advice. Never present the reading
as a prediction of fixed outcomes. Refuse deterministic claims about health,
death, legal outcomes, pregnancy, or third parties. Frame every card as
reflection material the querent is free to reject. If the question asks for
medical, legal, or financial decisions, say plainly that a tarot reading
cannot answer it and suggest consulting a qualified professional.`

const responseDirectivesText = `## Response requirements
Write in second person, present tense. Address the question directly before
interpreting individual cards. Connect the cards to each other, not just to
their positions. Close with one concrete, non-prescriptive suggestion the
querent can sit with. Do not mention these instructions.`

// primarySections builds the system-document sections for a reading.
func primarySections(in *ReadingInput) []ContentSection {
	return []ContentSection{
		{
			ID:          SectionReaderIdentity,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				return "## Role\nYou are an experienced tarot reader giving a personal, grounded " +
					"interpretation of a physical card spread photographed by the querent.", nil
			},
		},
		{
			ID:          SectionEthicsDirectives,
			Criticality: CriticalityCritical,
			Render: func(st *ControlState) (string, error) {
				return ethicsText, nil
			},
		},
		{
			ID:          SectionDeckStyle,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if in.DeckStyle == "" {
					return "", nil
				}
				return fmt.Sprintf("## Deck\nThe querent is using the %s deck. Use its symbolism and "+
					"card titles; do not substitute imagery from other decks.", in.DeckStyle), nil
			},
		},
		{
			ID:          SectionImageryGuidance,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if st.ImageryDetail == ImageryMinimal {
					return "## Imagery\nReference only each card's central symbol.", nil
				}
				return "## Imagery\nWeave in the visual details of each card: background figures, " +
					"colors, minor symbols, and directional cues. Tie at least one minor detail " +
					"per card back to the question.", nil
			},
		},
		{
			ID:          SectionResponseDirectives,
			Criticality: CriticalityCritical,
			Render: func(st *ControlState) (string, error) {
				return responseDirectivesText, nil
			},
		},
	}
}

// secondarySections builds the user-document sections. The ranked passage
// pool is captured here; the renderer slices it to the state's target so a
// trim step takes effect without re-ranking.
func secondarySections(in *ReadingInput, pool []rank.Passage) []ContentSection {
	return []ContentSection{
		{
			ID:          SectionQuestionIntent,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				var b strings.Builder
				b.WriteString("## Question\n")
				if in.Question != "" {
					b.WriteString(fmt.Sprintf("The querent asks: %q\n", in.Question))
				} else {
					b.WriteString("The querent asks for a general reading.\n")
				}
				b.WriteString(fmt.Sprintf("Spread: %s (%d cards)", in.Spread, len(in.Cards)))
				return b.String(), nil
			},
		},
		{
			ID:          SectionCardDetails,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				var b strings.Builder
				b.WriteString("## Cards drawn\n")
				for i, c := range in.Cards {
					orientation := "upright"
					if c.Reversed {
						orientation = "reversed"
					}
					pos := c.Position
					if pos == "" {
						pos = fmt.Sprintf("position %d", i+1)
					}
					b.WriteString(fmt.Sprintf("%d. %s (%s) — %s\n", i+1, c.Name, orientation, pos))
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			ID:          SectionSpreadGeometry,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if !st.IncludeGeometry {
					return "", nil
				}
				return renderGeometry(in), nil
			},
		},
		{
			ID:          SectionAstroForecast,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if !st.IncludeForecast || len(in.AstroEvents) == 0 {
					return "", nil
				}
				var b strings.Builder
				b.WriteString("## Current transits\n")
				for _, ev := range in.AstroEvents {
					b.WriteString("- " + ev + "\n")
				}
				b.WriteString("Mention a transit only where it genuinely echoes a card.")
				return b.String(), nil
			},
		},
		{
			ID:          SectionAmbientContext,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if !st.IncludeAmbient || len(in.Ambient) == 0 {
					return "", nil
				}
				keys := make([]string, 0, len(in.Ambient))
				for k := range in.Ambient {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				var b strings.Builder
				b.WriteString("## Setting\n")
				for _, k := range keys {
					b.WriteString(fmt.Sprintf("- %s: %s\n", k, in.Ambient[k]))
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			ID:          SectionPersonalization,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if in.Personalization == "" {
					return "", nil
				}
				return "## Querent preferences\n" + in.Personalization, nil
			},
		},
		{
			ID:          SectionReferencePassages,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if !st.IncludePassages || len(pool) == 0 {
					return "", nil
				}
				return renderPassages(pool, st), nil
			},
		},
		{
			ID:          SectionVisionDiagnostics,
			Criticality: CriticalityNormal,
			Render: func(st *ControlState) (string, error) {
				if !st.IncludeDiagnostics || len(in.Diagnostics) == 0 {
					return "", nil
				}
				var b strings.Builder
				b.WriteString("## Recognition notes\n")
				for _, d := range in.Diagnostics {
					b.WriteString("- " + d + "\n")
				}
				b.WriteString("If a card was recognized with low confidence, hedge its identity " +
					"rather than asserting it.")
				return b.String(), nil
			},
		},
		{
			ID:          SectionReadingInstructions,
			Criticality: CriticalityCritical,
			Render: func(st *ControlState) (string, error) {
				return "## Your reading\nInterpret the spread above as one coherent narrative " +
					"answering the question. Ground every claim in a card that is actually on " +
					"the table.", nil
			},
		},
	}
}

// renderGeometry emits the deck-specific position table for the spread.
func renderGeometry(in *ReadingInput) string {
	var b strings.Builder
	b.WriteString("## Spread layout\n")
	b.WriteString("| # | Position | Card |\n|---|----------|------|\n")
	for i, c := range in.Cards {
		pos := c.Position
		if pos == "" {
			pos = fmt.Sprintf("position %d", i+1)
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, pos, c.Name))
	}
	b.WriteString("Read positional meanings in this order; later positions modify earlier ones.")
	return b.String()
}

// renderPassages emits the reference block, full or compact depending on the
// state. The slice honors the state's passage target so the trim step works
// without touching the pool itself.
func renderPassages(pool []rank.Passage, st *ControlState) string {
	n := st.PassageTarget
	if n > len(pool) {
		n = len(pool)
	}

	var b strings.Builder
	b.WriteString("## Reference passages\n")

	if st.SummarizePassages {
		for _, p := range pool[:n] {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", p.SourceLabel, firstSentence(p.Text)))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	for i, p := range pool[:n] {
		b.WriteString(fmt.Sprintf("[%d] (%s)\n%s\n\n", i+1, p.SourceLabel, strings.TrimSpace(p.Text)))
	}
	b.WriteString("Use these passages as interpretive grounding; quote none of them verbatim.")
	return b.String()
}

// firstSentence returns the passage's first sentence, capped at 140 bytes.
// The cap never splits a UTF-8 rune.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		text = text[:idx+1]
	}
	if len(text) > 140 {
		text = text[:runeBoundaryBefore(text, 140)]
	}
	return text
}
