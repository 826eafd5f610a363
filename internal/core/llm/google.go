package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

type googleProvider struct {
	client      *genai.Client
	model       string
	opts        providerOptions
	rateLimiter *rate.Limiter
}

func newGoogleProvider(ctx context.Context, apiKey, model string, opts providerOptions) (*googleProvider, error) {
	opts = opts.withDefaults()

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &googleProvider{
		client:      client,
		model:       coalesce(model, ModelGemini15Pro),
		opts:        opts,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.rps), rateLimiterBurst),
	}, nil
}

func (p *googleProvider) Name() ProviderName   { return ProviderGoogle }
func (p *googleProvider) IsAvailable() bool    { return p.client != nil }
func (p *googleProvider) Priority() int        { return p.opts.priority }
func (p *googleProvider) DefaultModel() string { return p.model }

func (p *googleProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	model := coalesce(req.Model, p.model)
	temperature, maxTokens := p.opts.resolve(req)

	genModel := p.client.GenerativeModel(model)
	genModel.SetTemperature(temperature)
	genModel.SetMaxOutputTokens(int32(maxTokens)) //nolint:gosec // bounded by config

	if req.System != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sanitizeUTF8(req.System))}}
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(sanitizeUTF8(req.User)))
	if err != nil {
		recordTokenUsage(ProviderGoogle, model, req.Task, 0, 0, false)

		return Completion{}, fmt.Errorf(errFmtCompletion, ProviderGoogle, err)
	}

	var promptTokens, completionTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	recordTokenUsage(ProviderGoogle, model, req.Task, promptTokens, completionTokens, true)

	text := strings.TrimSpace(extractGoogleResponseText(resp))
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:             text,
		Model:            model,
		Provider:         ProviderGoogle,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

// Close closes the Google client.
func (p *googleProvider) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing google genai client: %w", err)
	}

	return nil
}

func extractGoogleResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var result strings.Builder

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.WriteString(string(text))
			}
		}
	}

	return result.String()
}

// sanitizeUTF8 drops invalid byte sequences the API rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	return strings.ToValidUTF8(s, "")
}
