package ai

import (
	"context"

	"research-orchestrator/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.LLMClient = (*limitedLLM)(nil)

// limitedLLM caps concurrent upstream calls. Waiting for a slot honours ctx.
type limitedLLM struct {
	inner adapter.LLMClient
	sem   chan struct{}
}

func NewLimitedLLM(inner adapter.LLMClient, maxConcurrent int) adapter.LLMClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedLLM{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedLLM) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedLLM) Complete(ctx context.Context, apiKey string, req adapter.Completion) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, apiKey, req)
}

func (l *limitedLLM) Stream(ctx context.Context, apiKey string, messages []adapter.Message, onChunk func(string) error) (adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Stream(ctx, apiKey, messages, onChunk)
}
