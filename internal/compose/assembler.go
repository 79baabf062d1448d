package compose

import (
	"strings"

	"tarotvision/internal/logging"
)

// sectionSeparator joins rendered sections inside a document.
const sectionSeparator = "\n\n"

// RenderedSection is one section's rendered text together with its identity
// and survival tag. The truncator works on this structure directly instead of
// rediscovering boundaries from prose.
type RenderedSection struct {
	ID          SectionID
	Criticality Criticality
	Text        string
}

// Document is one assembled output (primary or secondary) with its section
// structure preserved.
type Document struct {
	Text     string
	Sections []RenderedSection
}

// rebuildText re-joins the section texts. Kept as the single place where
// document text is derived from structure so the two can never drift.
func rebuildText(sections []RenderedSection) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, sectionSeparator)
}

// AssembleDocument renders each enabled section in declared order and joins
// them with a fixed separator. Pure: the same sections and state produce
// byte-identical output. A renderer returning an error, returning empty
// text, or panicking marks that section absent without aborting the rest.
func AssembleDocument(sections []ContentSection, st *ControlState) Document {
	rendered := make([]RenderedSection, 0, len(sections))

	for _, sec := range sections {
		if sec.Render == nil {
			continue
		}

		text, err := renderSection(sec, st)
		if err != nil {
			logging.Get(logging.CategoryCompose).Warn(
				"Section %s renderer failed, treating as absent: %v", sec.ID, err)
			continue
		}
		if text == "" {
			continue
		}

		rendered = append(rendered, RenderedSection{
			ID:          sec.ID,
			Criticality: sec.Criticality,
			Text:        text,
		})
	}

	doc := Document{
		Text:     rebuildText(rendered),
		Sections: rendered,
	}

	logging.ComposeDebug("Assembled document: %d/%d sections, %d chars, ~%d tokens",
		len(rendered), len(sections), len(doc.Text), EstimateTokens(doc.Text))

	return doc
}

// renderSection invokes one renderer with panic isolation.
func renderSection(sec ContentSection, st *ControlState) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &renderPanicError{section: sec.ID, value: r}
		}
	}()
	return sec.Render(st)
}

type renderPanicError struct {
	section SectionID
	value   interface{}
}

func (e *renderPanicError) Error() string {
	return "renderer panicked for section " + string(e.section)
}

// criticalIDs returns the IDs of critical sections present in a document,
// in declared order.
func criticalIDs(doc Document) []string {
	var ids []string
	for _, s := range doc.Sections {
		if s.Criticality == CriticalityCritical {
			ids = append(ids, string(s.ID))
		}
	}
	return ids
}
