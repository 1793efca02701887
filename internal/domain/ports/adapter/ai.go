package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Completion is a single non-streaming request.
type Completion struct {
	Messages  []Message
	JSON      bool // ask the model for a JSON object
	MaxTokens int
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient is the port for chat completions. The caller's key is passed per
// request since every user brings their own.
type LLMClient interface {
	Complete(ctx context.Context, apiKey string, req Completion) (string, Usage, error)
	// Stream calls onChunk with each content delta in order and stops at the
	// first error onChunk returns.
	Stream(ctx context.Context, apiKey string, messages []Message, onChunk func(chunk string) error) (Usage, error)
}

// Embedder turns text into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
