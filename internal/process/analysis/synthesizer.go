package analysis

import (
	"context"
	"fmt"

	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
)

// Synthesizer folds partial analyses into the final report.
type Synthesizer struct {
	llm Completer
}

func NewSynthesizer(completer Completer) *Synthesizer {
	return &Synthesizer{llm: completer}
}

// Synthesize makes one call over all partials in their order. A single
// partial still goes through synthesis to get the final formatting.
func (s *Synthesizer) Synthesize(ctx context.Context, partials []PartialAnalysis, qc QueryContext) (PartialAnalysis, error) {
	prompts := PromptsFor(qc.Mode)

	texts := make([]string, len(partials))
	for i, p := range partials {
		texts[i] = p.Text
	}

	data := qc.data()
	data.Parts = renderParts(texts)

	prompt, err := render(prompts.Synthesis, data)
	if err != nil {
		return PartialAnalysis{}, err
	}

	res, err := s.llm.Complete(ctx, llm.TaskSynthesis, prompts.System, prompt)
	if err != nil {
		return PartialAnalysis{}, fmt.Errorf("synthesis pass: %w", err)
	}

	return PartialAnalysis{Text: res.Text, Model: res.Model}, nil
}
