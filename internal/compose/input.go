package compose

import (
	"fmt"
	"strings"
	"time"

	"tarotvision/internal/rank"
)

// SemanticMode controls whether passage pools are scored with embeddings.
type SemanticMode string

const (
	// SemanticOff never calls the embedding service.
	SemanticOff SemanticMode = "off"

	// SemanticOn requests embedding scores; failures still degrade to
	// keyword scoring, never to an error.
	SemanticOn SemanticMode = "on"

	// SemanticAuto scores semantically when a scorer is configured.
	SemanticAuto SemanticMode = "auto"
)

// CardInput describes one drawn card as recognized by the vision pipeline.
type CardInput struct {
	Name       string  `json:"name" yaml:"name"`
	Position   string  `json:"position" yaml:"position"`
	Reversed   bool    `json:"reversed" yaml:"reversed"`
	PatternKey string  `json:"pattern_key" yaml:"pattern_key"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// ReadingInput carries everything one reading composition needs. All fields
// except Spread and Cards are optional; absent sources are simply omitted
// from the documents and recorded in telemetry.
type ReadingInput struct {
	Question        string            `json:"question" yaml:"question"`
	Spread          string            `json:"spread" yaml:"spread"`
	Cards           []CardInput       `json:"cards" yaml:"cards"`
	DeckStyle       string            `json:"deck_style" yaml:"deck_style"`
	Personalization string            `json:"personalization" yaml:"personalization"`
	AstroEvents     []string          `json:"astro_events" yaml:"astro_events"`
	Ambient         map[string]string `json:"ambient" yaml:"ambient"`
	Diagnostics     []string          `json:"diagnostics" yaml:"diagnostics"`

	// Passages is a pre-retrieved reference pool. When empty, PatternKeys
	// are resolved through the composer's passage source.
	Passages    []rank.Passage `json:"-" yaml:"-"`
	PatternKeys []string       `json:"pattern_keys" yaml:"pattern_keys"`

	// PassageLimit is the ranked pool size woven into the document.
	PassageLimit int `json:"passage_limit" yaml:"passage_limit"`

	Budget          BudgetPolicy  `json:"budget" yaml:"budget"`
	EnableSlimming  bool          `json:"enable_slimming" yaml:"enable_slimming"`
	SemanticScoring SemanticMode  `json:"semantic_scoring" yaml:"semantic_scoring"`
	ScoreTimeout    time.Duration `json:"score_timeout" yaml:"score_timeout"`
}

// defaultPassageLimit is used when the caller does not set one.
const defaultPassageLimit = 6

// defaultHardCap bounds output when the caller supplies no policy at all.
const defaultHardCap = 8000

// Validate rejects malformed primary input before assembly starts. This is
// the only fatal path in the pipeline.
func (in *ReadingInput) Validate() error {
	if strings.TrimSpace(in.Spread) == "" {
		return fmt.Errorf("reading input missing spread: a reading requires a named spread layout")
	}
	if len(in.Cards) == 0 {
		return fmt.Errorf("reading input missing cards: a reading requires at least one drawn card")
	}
	for i, c := range in.Cards {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("card %d has no name", i)
		}
	}
	if in.Budget.HardCap < 0 || in.Budget.SoftBudget < 0 {
		return fmt.Errorf("budget values must be non-negative")
	}
	return nil
}

// normalize fills defaults after validation.
func (in *ReadingInput) normalize() {
	if in.PassageLimit <= 0 {
		in.PassageLimit = defaultPassageLimit
	}
	if in.Budget.HardCap == 0 {
		in.Budget.HardCap = defaultHardCap
	}
	if in.SemanticScoring == "" {
		in.SemanticScoring = SemanticAuto
	}
	if in.ScoreTimeout <= 0 {
		in.ScoreTimeout = 5 * time.Second
	}
}
