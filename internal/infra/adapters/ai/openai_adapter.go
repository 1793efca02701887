package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.LLMClient = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to an OpenAI-compatible chat endpoint (OpenRouter by
// default) with the caller's key. When that key is rate limited and a server
// fallback key is configured, the call is repeated once on the fallback.
type OpenAIAdapter struct {
	client   openai.Client
	model    string
	provider string

	fallback      *openai.Client
	fallbackKey   string
	fallbackModel string

	log *zerolog.Logger
}

func NewOpenAIAdapter(cfg *config.LLMConfig, logger *zerolog.Logger) (*OpenAIAdapter, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model empty")
	}
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	l := logger.With().Str("component", "OpenAIAdapter").Logger()
	a := &OpenAIAdapter{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		provider: providerName(cfg.BaseURL),
		log:      &l,
	}
	if cfg.FallbackKey != "" {
		fopts := []option.RequestOption{
			option.WithBaseURL(cfg.FallbackBaseURL),
			option.WithAPIKey(cfg.FallbackKey),
			option.WithMaxRetries(1),
		}
		if cfg.Timeout > 0 {
			fopts = append(fopts, option.WithRequestTimeout(cfg.Timeout))
		}
		fc := openai.NewClient(fopts...)
		a.fallback = &fc
		a.fallbackKey = cfg.FallbackKey
		a.fallbackModel = cfg.FallbackModel
	}
	return a, nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, apiKey string, req adapter.Completion) (string, adapter.Usage, error) {
	if apiKey == "" {
		return "", adapter.Usage{}, errors.New("llm api key empty")
	}
	text, usage, err := o.complete(ctx, &o.client, o.model, req, option.WithAPIKey(apiKey))
	if isRateLimited(err) && o.fallback != nil {
		metrics.IncAIFallback(o.fallbackModel)
		o.log.Warn().Str("model", o.model).Msg("user key rate limited, retrying on fallback key")
		return o.complete(ctx, o.fallback, o.fallbackModel, req)
	}
	return text, usage, err
}

func (o *OpenAIAdapter) complete(ctx context.Context, c *openai.Client, model string, req adapter.Completion, opts ...option.RequestOption) (string, adapter.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := c.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		metrics.ObserveChatUsage(o.provider, model, 0, 0, time.Since(start), false)
		return "", adapter.Usage{}, fmt.Errorf("chat completion: %w", err)
	}
	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveChatUsage(o.provider, model, usage.PromptTokens, usage.CompletionTokens, time.Since(start), true)
	for _, ch := range resp.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, usage, nil
		}
	}
	return "", usage, errors.New("no choice content")
}

func (o *OpenAIAdapter) Stream(ctx context.Context, apiKey string, messages []adapter.Message, onChunk func(string) error) (adapter.Usage, error) {
	if apiKey == "" {
		return adapter.Usage{}, errors.New("llm api key empty")
	}
	usage, emitted, err := o.stream(ctx, &o.client, o.model, messages, onChunk, option.WithAPIKey(apiKey))
	// Falling back after partial output would duplicate text for the reader.
	if isRateLimited(err) && !emitted && o.fallback != nil {
		metrics.IncAIFallback(o.fallbackModel)
		o.log.Warn().Str("model", o.model).Msg("user key rate limited, streaming on fallback key")
		usage, _, err = o.stream(ctx, o.fallback, o.fallbackModel, messages, onChunk)
	}
	return usage, err
}

func (o *OpenAIAdapter) stream(ctx context.Context, c *openai.Client, model string, messages []adapter.Message, onChunk func(string) error, opts ...option.RequestOption) (adapter.Usage, bool, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	start := time.Now()
	s := c.Chat.Completions.NewStreaming(ctx, params, opts...)
	defer s.Close()

	var usage adapter.Usage
	emitted := false
	for s.Next() {
		chunk := s.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = adapter.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			emitted = true
			if err := onChunk(ch.Delta.Content); err != nil {
				metrics.ObserveChatUsage(o.provider, model, usage.PromptTokens, usage.CompletionTokens, time.Since(start), false)
				return usage, emitted, err
			}
		}
	}
	if err := s.Err(); err != nil {
		metrics.ObserveChatUsage(o.provider, model, usage.PromptTokens, usage.CompletionTokens, time.Since(start), false)
		return usage, emitted, fmt.Errorf("chat stream: %w", err)
	}
	metrics.ObserveChatUsage(o.provider, model, usage.PromptTokens, usage.CompletionTokens, time.Since(start), true)
	return usage, emitted, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func providerName(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "openrouter"):
		return "openrouter"
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	}
	return "openai-compatible"
}
