package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/infra/metrics"
)

var _ adapter.VectorStore = (*QdrantStore)(nil)

// QdrantStore speaks the Qdrant REST API. Vectors use cosine distance.
type QdrantStore struct {
	base   string // e.g., http://localhost:6333
	apiKey string
	client *http.Client
}

func NewQdrantStore(base, apiKey string, timeout time.Duration) *QdrantStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QdrantStore{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Any []string `json:"any"`
	} `json:"match"`
}

func toFilter(m *adapter.MatchAny) *qdrantFilter {
	if m == nil {
		return nil
	}
	c := qdrantCondition{Key: m.Key}
	c.Match.Any = m.Values
	return &qdrantFilter{Must: []qdrantCondition{c}}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	body := map[string]any{"vectors": map[string]any{"size": dim, "distance": "Cosine"}}
	status, err := q.do(ctx, "create_collection", http.MethodPut, "/collections/"+url.PathEscape(name), body, nil)
	if status == http.StatusConflict {
		return nil
	}
	if err != nil && status == http.StatusBadRequest && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []adapter.Point) error {
	if len(points) == 0 {
		return nil
	}
	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	ps := make([]point, len(points))
	for i, p := range points {
		ps[i] = point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	_, err := q.do(ctx, "upsert", http.MethodPut, "/collections/"+url.PathEscape(collection)+"/points?wait=true", map[string]any{"points": ps}, nil)
	return err
}

func (q *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter *adapter.MatchAny) ([]adapter.ScoredPoint, error) {
	body := struct {
		Vector      []float32     `json:"vector"`
		Limit       int           `json:"limit"`
		WithPayload bool          `json:"with_payload"`
		Filter      *qdrantFilter `json:"filter,omitempty"`
	}{Vector: vector, Limit: limit, WithPayload: true, Filter: toFilter(filter)}

	var out struct {
		Result []qdrantPoint `json:"result"`
	}
	status, err := q.do(ctx, "search", http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/search", body, &out)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toScored(out.Result), nil
}

func (q *QdrantStore) Points(ctx context.Context, collection string, filter adapter.MatchAny, limit int) ([]adapter.ScoredPoint, error) {
	body := struct {
		Limit       int           `json:"limit"`
		WithPayload bool          `json:"with_payload"`
		WithVector  bool          `json:"with_vector"`
		Filter      *qdrantFilter `json:"filter"`
	}{Limit: limit, WithPayload: true, Filter: toFilter(&filter)}

	var out struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	status, err := q.do(ctx, "scroll", http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/scroll", body, &out)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toScored(out.Result.Points), nil
}

func (q *QdrantStore) DeletePoints(ctx context.Context, collection string, filter adapter.MatchAny) error {
	status, err := q.do(ctx, "delete_points", http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/delete?wait=true",
		map[string]any{"filter": toFilter(&filter)}, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (q *QdrantStore) DropCollection(ctx context.Context, collection string) error {
	status, err := q.do(ctx, "drop_collection", http.MethodDelete, "/collections/"+url.PathEscape(collection), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func toScored(ps []qdrantPoint) []adapter.ScoredPoint {
	out := make([]adapter.ScoredPoint, len(ps))
	for i, p := range ps {
		out[i] = adapter.ScoredPoint{ID: p.ID, Score: p.Score, Payload: p.Payload}
	}
	return out
}

// do sends a JSON request and decodes the JSON reply into out when given.
// It returns the HTTP status alongside any error so callers can treat 404
// or 409 as success.
func (q *QdrantStore) do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.base+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	start := time.Now()
	resp, err := q.client.Do(req)
	if err != nil {
		metrics.ObserveExternalCall("qdrant", op, time.Since(start), false)
		return 0, fmt.Errorf("qdrant %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.ObserveExternalCall("qdrant", op, time.Since(start), false)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s http %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	metrics.ObserveExternalCall("qdrant", op, time.Since(start), true)
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant %s: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}
