// Package analysis turns a pool of stored materials into one LLM report.
//
// A request goes through retrieval, a token budget check and then either a
// single pass over the whole pool or a chunked pass whose partial results are
// folded by a synthesis call. Run never returns an error: every failure,
// including a panic, becomes an error AnalysisResult.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
)

// User-visible messages.
const (
	MsgNoRelevantMaterials = "Не найдено релевантных материалов"
	msgNoMaterialsDay      = "Не найдено материалов за %s"
	msgNoMaterialsPeriod   = "Не найдено материалов за период %s - %s"
	msgEmptyQuery          = "Пустой запрос"
	msgFailedFmt           = "Не удалось выполнить анализ: %s"
)

const (
	dateLayout      = "2006-01-02"
	weekSpanDays    = 6
	branchSingle    = "single_pass"
	branchChunked   = "chunked_pass"
	logFieldStage   = "stage"
	logFieldMode    = "mode"
	statusSuccess   = "success"
	statusError     = "error"
	statusEmpty     = "empty"
	defaultMaxCtx   = llm.DefaultContextSize
	stageRetrieve   = "retrieve"
	stageTheme      = "theme"
	stageEmbed      = "embed"
	stageBudget     = "budget_check"
	stageSingle     = branchSingle
	stageChunked    = branchChunked
	stageSynthesize = "synthesize"
)

// Retriever looks up stored materials.
type Retriever interface {
	SearchSimilar(ctx context.Context, embedding []float32, category string, threshold float32) ([]domain.Material, error)
	SearchByDateRange(ctx context.Context, category, start, end string) ([]domain.Material, error)
}

// Embedder turns a search theme into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLM is the completion service together with its context capacity.
type LLM interface {
	Completer
	MaxContextSize() int
}

// Settings tune budgets and optional stages.
type Settings struct {
	TrendReserved    float64
	DailyReserved    float64
	WeeklyReserved   float64
	TrendMargin      float64
	DigestMargin     float64
	ScoreThreshold   float32
	ChunkParallelism int
	ExtractTheme     bool
}

// DefaultSettings mirror the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		TrendReserved:    0.2,
		DailyReserved:    0.2,
		WeeklyReserved:   0.3,
		TrendMargin:      1.0,
		DigestMargin:     1.2,
		ScoreThreshold:   0.35,
		ChunkParallelism: 1,
		ExtractTheme:     true,
	}
}

// Request is one analysis to run.
type Request struct {
	Mode     domain.AnalysisMode
	Category string
	Query    string    // trend queries
	Date     time.Time // digests: the day, or the first day of the week
}

// Period returns the date range a digest request covers.
func (r Request) Period() (start, end string) {
	start = r.Date.Format(dateLayout)
	if r.Mode == domain.WeeklyDigest {
		return start, r.Date.AddDate(0, 0, weekSpanDays).Format(dateLayout)
	}

	return start, start
}

// Orchestrator coordinates one analysis request end to end.
type Orchestrator struct {
	retriever   Retriever
	embedder    Embedder
	llm         LLM
	counter     TokenCounter
	planner     *Planner
	analyzer    *Analyzer
	synthesizer *Synthesizer
	settings    Settings
	logger      *zerolog.Logger
}

// NewOrchestrator wires the pipeline from its collaborators.
func NewOrchestrator(retriever Retriever, embedder Embedder, client LLM, counter TokenCounter, settings Settings, logger *zerolog.Logger) *Orchestrator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Orchestrator{
		retriever:   retriever,
		embedder:    embedder,
		llm:         client,
		counter:     counter,
		planner:     NewPlanner(counter),
		analyzer:    NewAnalyzer(client),
		synthesizer: NewSynthesizer(client),
		settings:    settings,
		logger:      logger,
	}
}

// Budget returns the token budget for a mode.
func (o *Orchestrator) Budget(mode domain.AnalysisMode) domain.TokenBudget {
	maxCtx := o.llm.MaxContextSize()
	if maxCtx <= 0 {
		maxCtx = defaultMaxCtx
	}

	switch mode {
	case domain.WeeklyDigest:
		return domain.TokenBudget{MaxContextSize: maxCtx, ReservedFraction: o.settings.WeeklyReserved, SafetyMargin: o.settings.DigestMargin}
	case domain.DailyDigest:
		return domain.TokenBudget{MaxContextSize: maxCtx, ReservedFraction: o.settings.DailyReserved, SafetyMargin: o.settings.DigestMargin}
	default:
		return domain.TokenBudget{MaxContextSize: maxCtx, ReservedFraction: o.settings.TrendReserved, SafetyMargin: o.settings.TrendMargin}
	}
}

// run holds the state of one request as it moves through the stages.
type run struct {
	req       Request
	qc        QueryContext
	stage     string
	branch    string
	materials []domain.Material
	chunks    int
	model     string
	empty     bool
}

// Run executes the request. It never returns a Go error and never panics.
func (o *Orchestrator) Run(ctx context.Context, req Request) (result domain.AnalysisResult) {
	start := time.Now()
	r := &run{req: req, stage: stageRetrieve}
	logger := o.logger.With().Str(logFieldMode, req.Mode.String()).Str("category", req.Category).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Str(logFieldStage, r.stage).Msg("analysis panicked")
			result = domain.NewError(fmt.Sprintf(msgFailedFmt, "внутренняя ошибка"))
		}

		o.observe(r, result, time.Since(start))
	}()

	analysis, err := o.execute(ctx, r, &logger)
	if err != nil {
		var empty emptyCorpusError
		if errors.As(err, &empty) {
			r.empty = true
			logger.Info().Msg(empty.message)
			return domain.NewError(empty.message)
		}

		logger.Error().Err(err).Str(logFieldStage, r.stage).Msg("analysis failed")

		return domain.NewError(fmt.Sprintf(msgFailedFmt, err.Error()))
	}

	success := domain.Success{
		Mode:           req.Mode,
		Category:       req.Category,
		Period:         r.qc.Period,
		MaterialsCount: len(r.materials),
		ChunksCount:    r.chunks,
		Analysis:       analysis,
		Model:          r.model,
	}

	if req.Mode == domain.TrendQuery {
		success.Theme = r.qc.Theme
		success.Materials = r.materials
	}

	logger.Info().
		Int("materials", success.MaterialsCount).
		Int("chunks", success.ChunksCount).
		Str("branch", r.branch).
		Dur("duration", time.Since(start)).
		Msg("analysis completed")

	return domain.NewSuccess(success)
}

type emptyCorpusError struct{ message string }

func (e emptyCorpusError) Error() string { return e.message }

func (o *Orchestrator) execute(ctx context.Context, r *run, logger *zerolog.Logger) (string, error) {
	materials, err := o.retrieve(ctx, r, logger)
	if err != nil {
		return "", err
	}

	r.materials = materials

	r.stage = stageBudget
	budget := o.Budget(r.req.Mode)
	counts := o.planner.Counts(materials)
	total := sum(counts)
	available := budget.Available()

	logger.Debug().
		Int("materials", len(materials)).
		Int("total_tokens", total).
		Int("available_tokens", available).
		Int("max_context", budget.MaxContextSize).
		Msg("token budget computed")

	if total <= available {
		r.branch = branchSingle
		r.stage = stageSingle
		r.chunks = 1

		if r.req.Mode == domain.TrendQuery {
			return o.trendSinglePass(ctx, r)
		}

		partial, err := o.analyzer.Analyze(ctx, materials, r.qc)
		if err != nil {
			return "", err
		}

		return o.synthesize(ctx, r, []PartialAnalysis{partial})
	}

	r.branch = branchChunked
	r.stage = stageChunked

	chunks := PlanWithCounts(materials, counts, budget)
	r.chunks = len(chunks)

	logger.Info().Int("chunks", len(chunks)).Int("total_tokens", total).Int("available_tokens", available).Msg("materials exceed budget, analyzing in chunks")

	partials, err := o.analyzer.AnalyzeAll(ctx, chunks, r.qc, o.settings.ChunkParallelism)
	if err != nil {
		return "", err
	}

	return o.synthesize(ctx, r, partials)
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run, logger *zerolog.Logger) ([]domain.Material, error) {
	req := r.req
	r.qc = QueryContext{Mode: req.Mode, Query: req.Query, Category: req.Category}

	if req.Mode.IsDigest() {
		start, end := req.Period()
		r.qc.Period = start
		if end != start {
			r.qc.Period = start + " - " + end
		}

		r.stage = stageRetrieve

		materials, err := o.retriever.SearchByDateRange(ctx, req.Category, start, end)
		if err != nil {
			return nil, fmt.Errorf("search by date range: %w", err)
		}

		if len(materials) == 0 {
			if end == start {
				return nil, emptyCorpusError{message: fmt.Sprintf(msgNoMaterialsDay, start)}
			}

			return nil, emptyCorpusError{message: fmt.Sprintf(msgNoMaterialsPeriod, start, end)}
		}

		return materials, nil
	}

	if strings.TrimSpace(req.Query) == "" {
		return nil, emptyCorpusError{message: msgEmptyQuery}
	}

	r.stage = stageTheme
	r.qc.Theme = o.extractTheme(ctx, r.qc, logger)

	r.stage = stageEmbed

	embedding, err := o.embedder.Embed(ctx, r.qc.Theme)
	if err != nil {
		return nil, fmt.Errorf("embed theme: %w", err)
	}

	r.stage = stageRetrieve

	materials, err := o.retriever.SearchSimilar(ctx, embedding, req.Category, o.settings.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if len(materials) == 0 {
		return nil, emptyCorpusError{message: MsgNoRelevantMaterials}
	}

	return materials, nil
}

// extractTheme asks for a short search sentence. The raw query is used when
// extraction is disabled or fails.
func (o *Orchestrator) extractTheme(ctx context.Context, qc QueryContext, logger *zerolog.Logger) string {
	if !o.settings.ExtractTheme {
		return qc.Query
	}

	prompt, err := render(themeTemplate, qc.data())
	if err != nil {
		return qc.Query
	}

	res, err := o.llm.Complete(ctx, llm.TaskTheme, trendSystemPrompt, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("theme extraction failed, searching by raw query")
		return qc.Query
	}

	theme := strings.TrimSpace(res.Text)
	if theme == "" {
		return qc.Query
	}

	return theme
}

func (o *Orchestrator) trendSinglePass(ctx context.Context, r *run) (string, error) {
	filtered, err := o.analyzer.Filter(ctx, r.materials, r.qc)
	if err != nil {
		return "", err
	}

	report, err := o.analyzer.AnalyzeFiltered(ctx, filtered.Text, r.qc)
	if err != nil {
		return "", err
	}

	r.model = report.Model

	return report.Text, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run, partials []PartialAnalysis) (string, error) {
	r.stage = stageSynthesize

	final, err := o.synthesizer.Synthesize(ctx, partials, r.qc)
	if err != nil {
		return "", err
	}

	r.model = final.Model

	return final.Text, nil
}

func (o *Orchestrator) observe(r *run, result domain.AnalysisResult, d time.Duration) {
	mode := r.req.Mode.String()
	status := statusSuccess

	if result.Kind() == domain.ResultError {
		status = statusError
		if r.empty {
			status = statusEmpty
		}
	}

	observability.AnalysisRequests.WithLabelValues(mode, status).Inc()
	observability.AnalysisMaterials.WithLabelValues(mode).Observe(float64(len(r.materials)))

	if r.branch != "" {
		observability.AnalysisDuration.WithLabelValues(mode, r.branch).Observe(d.Seconds())
		observability.AnalysisChunks.WithLabelValues(mode).Observe(float64(r.chunks))
	}
}
