package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

type anthropicProvider struct {
	client      anthropic.Client
	model       string
	opts        providerOptions
	rateLimiter *rate.Limiter
}

func newAnthropicProvider(apiKey, model string, opts providerOptions) *anthropicProvider {
	opts = opts.withDefaults()

	return &anthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       coalesce(model, ModelClaudeHaiku),
		opts:        opts,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.rps), rateLimiterBurst),
	}
}

func (p *anthropicProvider) Name() ProviderName   { return ProviderAnthropic }
func (p *anthropicProvider) IsAvailable() bool    { return true }
func (p *anthropicProvider) Priority() int        { return p.opts.priority }
func (p *anthropicProvider) DefaultModel() string { return p.model }

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	model := coalesce(req.Model, p.model)
	temperature, maxTokens := p.opts.resolve(req)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		recordTokenUsage(ProviderAnthropic, model, req.Task, 0, 0, false)

		return Completion{}, fmt.Errorf(errFmtCompletion, ProviderAnthropic, err)
	}

	promptTokens, completionTokens := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	recordTokenUsage(ProviderAnthropic, model, req.Task, promptTokens, completionTokens, true)

	text := strings.TrimSpace(extractTextFromResponse(resp))
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:             text,
		Model:            coalesce(string(resp.Model), model),
		Provider:         ProviderAnthropic,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func extractTextFromResponse(resp *anthropic.Message) string {
	var sb strings.Builder

	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return sb.String()
}
