package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
)

// Completer is the text-analysis service.
type Completer interface {
	Complete(ctx context.Context, task llm.TaskType, system, user string) (llm.Completion, error)
}

// QueryContext carries what every prompt of one request is parameterized by.
type QueryContext struct {
	Mode     domain.AnalysisMode
	Query    string
	Theme    string
	Category string
	Period   string
}

func (q QueryContext) data() promptData {
	theme := q.Theme
	if theme == "" {
		theme = q.Query
	}

	return promptData{
		Query:    q.Query,
		Theme:    theme,
		Category: q.Category,
		Period:   q.Period,
	}
}

// PartialAnalysis is the raw text produced for one chunk.
type PartialAnalysis struct {
	Text  string
	Model string
}

// Analyzer runs the per-chunk reduction prompt.
type Analyzer struct {
	llm Completer
}

func NewAnalyzer(completer Completer) *Analyzer {
	return &Analyzer{llm: completer}
}

// Analyze makes one call for the chunk and returns the response unparsed.
func (a *Analyzer) Analyze(ctx context.Context, chunk Chunk, qc QueryContext) (PartialAnalysis, error) {
	prompts := PromptsFor(qc.Mode)

	data := qc.data()
	data.Materials = renderMaterials(chunk)

	prompt, err := render(prompts.Chunk, data)
	if err != nil {
		return PartialAnalysis{}, err
	}

	return a.complete(ctx, llm.TaskChunk, prompts.System, prompt)
}

// AnalyzeAll analyzes chunks and returns partials in chunk order. With
// parallelism above one, up to that many chunks are in flight at once.
func (a *Analyzer) AnalyzeAll(ctx context.Context, chunks []Chunk, qc QueryContext, parallelism int) ([]PartialAnalysis, error) {
	partials := make([]PartialAnalysis, len(chunks))

	if parallelism <= 1 {
		for i, chunk := range chunks {
			p, err := a.Analyze(ctx, chunk, qc)
			if err != nil {
				return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}

			partials[i] = p
		}

		return partials, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, chunk := range chunks {
		g.Go(func() error {
			p, err := a.Analyze(gctx, chunk, qc)
			if err != nil {
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}

			partials[i] = p

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped with chunk position
	}

	return partials, nil
}

// Filter is the first pass of the trend single-chunk path: it keeps only
// materials relevant to the query.
func (a *Analyzer) Filter(ctx context.Context, materials []domain.Material, qc QueryContext) (PartialAnalysis, error) {
	data := qc.data()
	data.Materials = renderMaterials(materials)

	prompt, err := render(trendPrompts.Filter, data)
	if err != nil {
		return PartialAnalysis{}, err
	}

	return a.complete(ctx, llm.TaskFilter, trendPrompts.System, prompt)
}

// AnalyzeFiltered turns the filtered list into the final trend report.
func (a *Analyzer) AnalyzeFiltered(ctx context.Context, filtered string, qc QueryContext) (PartialAnalysis, error) {
	data := qc.data()
	data.Filtered = filtered

	prompt, err := render(trendPrompts.Analysis, data)
	if err != nil {
		return PartialAnalysis{}, err
	}

	return a.complete(ctx, llm.TaskAnalysis, trendPrompts.System, prompt)
}

func (a *Analyzer) complete(ctx context.Context, task llm.TaskType, system, prompt string) (PartialAnalysis, error) {
	res, err := a.llm.Complete(ctx, task, system, prompt)
	if err != nil {
		return PartialAnalysis{}, fmt.Errorf("%s pass: %w", task, err)
	}

	return PartialAnalysis{Text: res.Text, Model: res.Model}, nil
}
