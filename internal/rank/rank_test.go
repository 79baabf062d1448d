package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		pool     []Passage
		expected Strategy
	}{
		{
			name:     "empty pool falls back to priority",
			pool:     nil,
			expected: StrategyPriority,
		},
		{
			name: "semantic wins when any passage has a semantic score",
			pool: []Passage{
				{Text: "a", KeywordScore: fp(0.5)},
				{Text: "b", SemanticScore: fp(0.9)},
			},
			expected: StrategySemantic,
		},
		{
			name: "keyword when only keyword scores present",
			pool: []Passage{
				{Text: "a", KeywordScore: fp(0.5)},
				{Text: "b"},
			},
			expected: StrategyKeyword,
		},
		{
			name: "priority when no scores present",
			pool: []Passage{
				{Text: "a", PriorityTier: 2},
				{Text: "b", PriorityTier: 1},
			},
			expected: StrategyPriority,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectStrategy(tt.pool))
		})
	}
}

func TestRank_SemanticOrder(t *testing.T) {
	pool := []Passage{
		{Text: "high", SemanticScore: fp(0.9)},
		{Text: "low", SemanticScore: fp(0.4)},
		{Text: "mid", SemanticScore: fp(0.7)},
	}

	ranked, strategy := Rank(pool, 0)
	require.Len(t, ranked, 3)

	assert.Equal(t, StrategySemantic, strategy)
	assert.Equal(t, "high", ranked[0].Text)
	assert.Equal(t, "mid", ranked[1].Text)
	assert.Equal(t, "low", ranked[2].Text)
}

func TestRank_PriorityTierOrder(t *testing.T) {
	pool := []Passage{
		{Text: "tier3", PriorityTier: 3},
		{Text: "tier1", PriorityTier: 1},
		{Text: "tier2", PriorityTier: 2},
	}

	ranked, strategy := Rank(pool, 0)
	require.Len(t, ranked, 3)

	assert.Equal(t, StrategyPriority, strategy)
	assert.Equal(t, "tier1", ranked[0].Text)
	assert.Equal(t, "tier2", ranked[1].Text)
	assert.Equal(t, "tier3", ranked[2].Text)
}

func TestRank_TrimsToTopN(t *testing.T) {
	// 10 passages with distinct keyword scores, deliberately shuffled.
	scores := []float64{0.3, 0.9, 0.1, 0.7, 0.5, 1.0, 0.2, 0.8, 0.4, 0.6}
	pool := make([]Passage, len(scores))
	for i, s := range scores {
		pool[i] = Passage{Text: "p", KeywordScore: fp(s)}
	}

	ranked, strategy := Rank(pool, 3)
	require.Len(t, ranked, 3)

	assert.Equal(t, StrategyKeyword, strategy)
	assert.Equal(t, 1.0, *ranked[0].KeywordScore)
	assert.Equal(t, 0.9, *ranked[1].KeywordScore)
	assert.Equal(t, 0.8, *ranked[2].KeywordScore)
}

func TestRank_TieBreaks(t *testing.T) {
	t.Run("equal semantic falls to keyword", func(t *testing.T) {
		pool := []Passage{
			{Text: "weak", SemanticScore: fp(0.8), KeywordScore: fp(0.1)},
			{Text: "strong", SemanticScore: fp(0.8), KeywordScore: fp(0.6)},
		}

		ranked, _ := Rank(pool, 0)
		assert.Equal(t, "strong", ranked[0].Text)
	})

	t.Run("equal scores fall to tier", func(t *testing.T) {
		pool := []Passage{
			{Text: "deep", SemanticScore: fp(0.8), PriorityTier: 4},
			{Text: "core", SemanticScore: fp(0.8), PriorityTier: 0},
		}

		ranked, _ := Rank(pool, 0)
		assert.Equal(t, "core", ranked[0].Text)
	})

	t.Run("full tie keeps original order", func(t *testing.T) {
		pool := []Passage{
			{Text: "first", SemanticScore: fp(0.8), PriorityTier: 1},
			{Text: "second", SemanticScore: fp(0.8), PriorityTier: 1},
		}

		ranked, _ := Rank(pool, 0)
		assert.Equal(t, "first", ranked[0].Text)
		assert.Equal(t, "second", ranked[1].Text)
	})

	t.Run("missing semantic score ranks below present", func(t *testing.T) {
		pool := []Passage{
			{Text: "unscored"},
			{Text: "scored", SemanticScore: fp(0.2)},
		}

		ranked, strategy := Rank(pool, 0)
		assert.Equal(t, StrategySemantic, strategy)
		assert.Equal(t, "scored", ranked[0].Text)
	})
}

func TestRank_InputOrderIndependent(t *testing.T) {
	a := []Passage{
		{Text: "x", SemanticScore: fp(0.9)},
		{Text: "y", SemanticScore: fp(0.4)},
		{Text: "z", SemanticScore: fp(0.7)},
	}
	b := []Passage{a[1], a[2], a[0]}

	rankedA, _ := Rank(a, 2)
	rankedB, _ := Rank(b, 2)

	require.Len(t, rankedA, 2)
	require.Len(t, rankedB, 2)
	assert.Equal(t, rankedA[0].Text, rankedB[0].Text)
	assert.Equal(t, rankedA[1].Text, rankedB[1].Text)
}

func TestTrimTarget(t *testing.T) {
	tests := []struct {
		name              string
		current, original int
		expected          int
	}{
		{"halves a full pool", 8, 8, 4},
		{"always removes at least one", 4, 8, 3},
		{"never removes below one", 1, 8, 1},
		{"two goes to one", 2, 2, 1},
		{"odd original rounds half up", 7, 7, 4},
		{"current below half still shrinks", 3, 8, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrimTarget(tt.current, tt.original))
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	t.Run("full overlap", func(t *testing.T) {
		assert.Equal(t, 1.0, KeywordOverlap("the tower", "The Tower card signals upheaval"))
	})

	t.Run("partial overlap", func(t *testing.T) {
		score := KeywordOverlap("love and career", "career questions dominate")
		assert.InDelta(t, 1.0/3.0, score, 1e-9)
	})

	t.Run("empty query", func(t *testing.T) {
		assert.Equal(t, 0.0, KeywordOverlap("", "anything"))
	})

	t.Run("punctuation and case ignored", func(t *testing.T) {
		assert.Equal(t, 1.0, KeywordOverlap("Moon!", "under the moon."))
	})
}
