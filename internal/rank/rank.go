// Package rank orders and trims pools of reference passages before they are
// woven into a reading prompt. The scoring basis (semantic, keyword, or
// priority) is chosen from whichever score fields are populated across the
// pool, and the comparator is a pure function of the score fields plus the
// declared tie-break order.
package rank

import (
	"sort"
	"strings"
	"unicode"

	"tarotvision/internal/logging"
)

// Strategy is the scoring basis used to order a passage pool.
type Strategy string

const (
	// StrategySemantic ranks by embedding similarity scores.
	StrategySemantic Strategy = "semantic"

	// StrategyKeyword ranks by keyword-overlap scores.
	StrategyKeyword Strategy = "keyword"

	// StrategyPriority ranks by editorial priority tier (lower tier = more
	// important), mapped to a comparable score via 1/(1+tier).
	StrategyPriority Strategy = "priority"
)

// Passage is one retrieved reference passage. The pool is produced
// externally; this package only ranks and trims it.
type Passage struct {
	// Text is the passage body.
	Text string

	// SourceLabel identifies where the passage came from (corpus name,
	// book, deck booklet).
	SourceLabel string

	// PriorityTier is the editorial importance tier; lower is more
	// important.
	PriorityTier int

	// KeywordScore is the keyword-overlap score against the querent's
	// question, nil when not computed.
	KeywordScore *float64

	// SemanticScore is the embedding similarity score against the
	// question, nil when the embedding service was unavailable.
	SemanticScore *float64
}

// SelectStrategy picks the scoring basis for a pool.
// Precedence: semantic if any passage carries a semantic score, else keyword
// if any carries a keyword score, else priority.
func SelectStrategy(pool []Passage) Strategy {
	for _, p := range pool {
		if p.SemanticScore != nil {
			return StrategySemantic
		}
	}
	for _, p := range pool {
		if p.KeywordScore != nil {
			return StrategyKeyword
		}
	}
	return StrategyPriority
}

// primaryScore returns the comparator's primary key for a passage under the
// given strategy. Missing scores rank as zero and fall to the tie-breaks.
func primaryScore(p Passage, strategy Strategy) float64 {
	switch strategy {
	case StrategySemantic:
		if p.SemanticScore != nil {
			return *p.SemanticScore
		}
		return 0
	case StrategyKeyword:
		if p.KeywordScore != nil {
			return *p.KeywordScore
		}
		return 0
	default:
		return 1.0 / float64(1+p.PriorityTier)
	}
}

func keywordScore(p Passage) float64 {
	if p.KeywordScore != nil {
		return *p.KeywordScore
	}
	return 0
}

// Rank orders a pool under the selected strategy and trims it to limit.
// Comparator: selected score descending, then keyword score descending, then
// priority tier ascending, then original pool order. Trimming to N always
// yields the top N under this comparator. limit <= 0 means no trim.
func Rank(pool []Passage, limit int) ([]Passage, Strategy) {
	strategy := SelectStrategy(pool)
	if len(pool) == 0 {
		return nil, strategy
	}

	type indexed struct {
		p     Passage
		index int
	}
	candidates := make([]indexed, len(pool))
	for i, p := range pool {
		candidates[i] = indexed{p: p, index: i}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		sa, sb := primaryScore(a.p, strategy), primaryScore(b.p, strategy)
		if sa != sb {
			return sa > sb
		}
		ka, kb := keywordScore(a.p), keywordScore(b.p)
		if ka != kb {
			return ka > kb
		}
		if a.p.PriorityTier != b.p.PriorityTier {
			return a.p.PriorityTier < b.p.PriorityTier
		}
		return a.index < b.index
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ranked := make([]Passage, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.p
	}

	logging.RankDebug("Ranked %d passages (strategy=%s, limit=%d)", len(ranked), strategy, limit)
	return ranked, strategy
}

// TrimTarget computes the next pool target when the degradation pipeline
// shrinks the passage pool: max(1, min(current-1, ceil(original/2))).
// It always removes at least one passage and never goes below one, so the
// pool shrinks gradually instead of vanishing in a single step.
func TrimTarget(current, original int) int {
	if current <= 1 {
		return 1
	}
	half := (original + 1) / 2
	target := current - 1
	if half < target {
		target = half
	}
	if target < 1 {
		target = 1
	}
	return target
}

// KeywordOverlap scores how much of the query's vocabulary appears in the
// passage text: |query words ∩ passage words| / |query words|. Word
// comparison is case-insensitive and punctuation-blind.
func KeywordOverlap(query, text string) float64 {
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return 0
	}

	passageWords := make(map[string]struct{})
	for _, w := range tokenize(text) {
		passageWords[w] = struct{}{}
	}

	seen := make(map[string]struct{})
	hits := 0
	for _, w := range queryWords {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := passageWords[w]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(seen))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
