package analysis

import (
	"math"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

// TokenCounter estimates the token cost of a text.
type TokenCounter interface {
	Count(text string) int
}

// Chunk is a non-empty, ordered group of materials analyzed in one call.
type Chunk []domain.Material

// Planner partitions a materials pool into token-bounded chunks.
type Planner struct {
	counter TokenCounter
}

func NewPlanner(counter TokenCounter) *Planner {
	return &Planner{counter: counter}
}

// Counts returns the token cost of every material, in order.
func (p *Planner) Counts(materials []domain.Material) []int {
	counts := make([]int, len(materials))
	for i, m := range materials {
		counts[i] = p.counter.Count(m.Text)
	}

	return counts
}

// Plan splits materials into chunks. Materials keep their input order and
// each appears in exactly one chunk. A material larger than the available
// budget is placed in a chunk of its own.
func (p *Planner) Plan(materials []domain.Material, budget domain.TokenBudget) []Chunk {
	return PlanWithCounts(materials, p.Counts(materials), budget)
}

// PlanWithCounts is Plan with precomputed token counts.
func PlanWithCounts(materials []domain.Material, counts []int, budget domain.TokenBudget) []Chunk {
	if len(materials) == 0 {
		return nil
	}

	available := budget.Available()
	target := TargetChunkSize(sum(counts), len(materials), available, budget.Margin())

	var (
		chunks  []Chunk
		current Chunk
		tokens  int
	)

	for i, m := range materials {
		n := counts[i]

		if tokens+n > available {
			if len(current) > 0 {
				chunks = append(chunks, current)
			}

			current = Chunk{m}
			tokens = n
		} else {
			current = append(current, m)
			tokens += n
		}

		if len(current) >= target {
			chunks = append(chunks, current)
			current = nil
			tokens = 0
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}

// TargetChunkSize is max(1, floor(available / (avg * margin))) where avg is
// the mean material size. A pool of empty texts fits in one chunk.
func TargetChunkSize(totalTokens, materials, available int, margin float64) int {
	if materials <= 0 {
		return 1
	}

	if margin < 1 {
		margin = 1
	}

	avg := float64(totalTokens) / float64(materials)
	if avg == 0 {
		return materials
	}

	target := int(math.Floor(float64(available) / (avg * margin)))
	if target < 1 {
		return 1
	}

	return target
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}

	return total
}
