package adapter

import "context"

// WebResult is one hit from a web search provider.
type WebResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type WebSearcher interface {
	Search(ctx context.Context, apiKey, query string, maxResults int) ([]WebResult, error)
}

// Point is a vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// MatchAny keeps points whose payload Key equals one of Values.
type MatchAny struct {
	Key    string
	Values []string
}

// VectorStore is the similarity index used by the search and extract stages
// and by the document knowledge base.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns an empty result for a collection that does not exist.
	Search(ctx context.Context, collection string, vector []float32, limit int, filter *MatchAny) ([]ScoredPoint, error)
	// Points lists stored points matching filter without a query vector.
	Points(ctx context.Context, collection string, filter MatchAny, limit int) ([]ScoredPoint, error)
	DeletePoints(ctx context.Context, collection string, filter MatchAny) error
	DropCollection(ctx context.Context, collection string) error
}
