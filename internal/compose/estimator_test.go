package compose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars rounds up", "abcde", 2},
		{"eight chars", "abcdefgh", 2},
		{"hundred chars", strings.Repeat("x", 100), 25},
		{"hundred and one", strings.Repeat("x", 101), 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateTokensMonotonic(t *testing.T) {
	text := strings.Repeat("the tower reversed ", 50)
	prev := 0
	for i := 0; i <= len(text); i += 7 {
		got := EstimateTokens(text[:i])
		assert.GreaterOrEqual(t, got, prev, "estimate must not decrease with length")
		prev = got
	}
}

func TestEstimateCost(t *testing.T) {
	primary := Document{Text: strings.Repeat("p", 400)}   // 100 tokens
	secondary := Document{Text: strings.Repeat("s", 200)} // 50 tokens

	t.Run("within budget", func(t *testing.T) {
		est := estimateCost(primary, secondary, BudgetPolicy{SoftBudget: 200, HardCap: 1000})
		assert.Equal(t, 100, est.Primary)
		assert.Equal(t, 50, est.Secondary)
		assert.Equal(t, 150, est.Total)
		assert.False(t, est.OverBudget)
	})

	t.Run("over soft budget", func(t *testing.T) {
		est := estimateCost(primary, secondary, BudgetPolicy{SoftBudget: 100, HardCap: 1000})
		assert.True(t, est.OverBudget)
	})

	t.Run("slimming disabled never over budget", func(t *testing.T) {
		est := estimateCost(primary, secondary, BudgetPolicy{SoftBudget: 0, HardCap: 1000})
		assert.False(t, est.OverBudget)
		assert.Equal(t, 0, est.Budget)
	})
}
