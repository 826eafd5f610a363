package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

// lenCounter counts one token per byte.
type lenCounter struct{}

func (lenCounter) Count(text string) int { return len(text) }

func materialsOfSizes(sizes ...int) []domain.Material {
	out := make([]domain.Material, len(sizes))
	for i, n := range sizes {
		out[i] = domain.Material{
			ID:   fmt.Sprintf("m%d", i+1),
			URL:  fmt.Sprintf("https://example.com/%d", i+1),
			Text: strings.Repeat("a", n),
		}
	}

	return out
}

func ids(chunks []Chunk) [][]string {
	out := make([][]string, len(chunks))
	for i, c := range chunks {
		for _, m := range c {
			out[i] = append(out[i], m.ID)
		}
	}

	return out
}

func TestPlanOversizedMaterialGetsOwnChunk(t *testing.T) {
	// available = floor(5001 * 0.8) = 4000, avg = 1750, target = 2
	budget := domain.TokenBudget{MaxContextSize: 5001, ReservedFraction: 0.2, SafetyMargin: 1}

	chunks := NewPlanner(lenCounter{}).Plan(materialsOfSizes(100, 150, 5000), budget)

	assert.Equal(t, [][]string{{"m1", "m2"}, {"m3"}}, ids(chunks))
}

func TestPlanCoversEveryMaterialInOrder(t *testing.T) {
	sizes := []int{30, 10, 70, 5, 60, 60, 1, 90, 20, 40, 15}
	materials := materialsOfSizes(sizes...)
	budget := domain.TokenBudget{MaxContextSize: 125, ReservedFraction: 0.2, SafetyMargin: 1.2}

	chunks := NewPlanner(lenCounter{}).Plan(materials, budget)
	require.NotEmpty(t, chunks)

	var flat []string
	for _, c := range chunks {
		require.NotEmpty(t, c)
		for _, m := range c {
			flat = append(flat, m.ID)
		}
	}

	want := make([]string, len(materials))
	for i, m := range materials {
		want[i] = m.ID
	}

	assert.Equal(t, want, flat)
}

func TestPlanRespectsBudget(t *testing.T) {
	sizes := []int{30, 10, 70, 5, 60, 60, 1, 90, 20, 40, 15, 300}
	budget := domain.TokenBudget{MaxContextSize: 125, ReservedFraction: 0.2, SafetyMargin: 1}
	available := budget.Available()

	for _, c := range NewPlanner(lenCounter{}).Plan(materialsOfSizes(sizes...), budget) {
		total := 0
		for _, m := range c {
			total += len(m.Text)
		}

		if len(c) > 1 {
			assert.LessOrEqual(t, total, available)
		}
	}
}

func TestPlanEmpty(t *testing.T) {
	budget := domain.TokenBudget{MaxContextSize: 100, ReservedFraction: 0.2}
	assert.Nil(t, NewPlanner(lenCounter{}).Plan(nil, budget))
}

func TestPlanEmptyTextsFitOneChunk(t *testing.T) {
	budget := domain.TokenBudget{MaxContextSize: 100, ReservedFraction: 0.2}
	chunks := NewPlanner(lenCounter{}).Plan(materialsOfSizes(0, 0, 0), budget)
	assert.Equal(t, [][]string{{"m1", "m2", "m3"}}, ids(chunks))
}

func TestTargetChunkSize(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		n         int
		available int
		margin    float64
		want      int
	}{
		{name: "even split", total: 150, n: 5, available: 80, margin: 1, want: 2},
		{name: "margin shrinks target", total: 100, n: 10, available: 100, margin: 2, want: 5},
		{name: "never below one", total: 10000, n: 2, available: 100, margin: 1, want: 1},
		{name: "zero average", total: 0, n: 7, available: 100, margin: 1, want: 7},
		{name: "margin below one is ignored", total: 100, n: 10, available: 100, margin: 0.5, want: 10},
		{name: "no materials", total: 0, n: 0, available: 100, margin: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetChunkSize(tt.total, tt.n, tt.available, tt.margin))
		})
	}
}
