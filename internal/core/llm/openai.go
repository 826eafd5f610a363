package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DeepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

const modelPrefixO1 = "o1"

var ErrEmptyResponse = errors.New("empty completion response")

// openaiProvider serves OpenAI and any OpenAI-compatible API such as DeepSeek.
type openaiProvider struct {
	name        ProviderName
	client      *openai.Client
	model       string
	opts        providerOptions
	rateLimiter *rate.Limiter
}

func newOpenAIProvider(apiKey, model string, opts providerOptions) *openaiProvider {
	opts = opts.withDefaults()

	return &openaiProvider{
		name:        ProviderOpenAI,
		client:      openai.NewClient(apiKey),
		model:       coalesce(model, ModelGPT4oMini),
		opts:        opts,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.rps), rateLimiterBurst),
	}
}

func newDeepSeekProvider(apiKey, baseURL, model string, opts providerOptions) *openaiProvider {
	opts = opts.withDefaults()

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = coalesce(baseURL, DeepSeekBaseURL)

	return &openaiProvider{
		name:        ProviderDeepSeek,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       coalesce(model, ModelDeepSeekChat),
		opts:        opts,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.rps), rateLimiterBurst),
	}
}

func (p *openaiProvider) Name() ProviderName   { return p.name }
func (p *openaiProvider) IsAvailable() bool    { return p.client != nil }
func (p *openaiProvider) Priority() int        { return p.opts.priority }
func (p *openaiProvider) DefaultModel() string { return p.model }

func (p *openaiProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	model := coalesce(req.Model, p.model)
	temperature, maxTokens := p.opts.resolve(req)

	chatReq := openai.ChatCompletionRequest{Model: model}

	// o1 models reject system messages, temperature and max_tokens.
	if strings.HasPrefix(model, modelPrefixO1) {
		chatReq.Messages = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: joinPrompts(req.System, req.User)},
		}
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.Messages = buildChatMessages(req.System, req.User)
		chatReq.Temperature = temperature
		chatReq.MaxTokens = maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		recordTokenUsage(p.name, model, req.Task, 0, 0, false)

		return Completion{}, fmt.Errorf(errFmtCompletion, p.name, err)
	}

	recordTokenUsage(p.name, model, req.Task, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, true)

	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            coalesce(resp.Model, model),
		Provider:         p.name,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func buildChatMessages(system, user string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)

	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})
}

func joinPrompts(system, user string) string {
	if system == "" {
		return user
	}

	return system + "\n\n" + user
}
