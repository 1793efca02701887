//go:build !integration

package research

import (
	"context"
	"strings"
	"sync"

	"research-orchestrator/internal/domain/ports/adapter"
)

type fakeLLM struct {
	mu        sync.Mutex
	complete  func(req adapter.Completion) (string, error)
	chunks    []string
	streamErr error
	calls     []adapter.Completion
	streamed  [][]adapter.Message
}

func (f *fakeLLM) Complete(_ context.Context, _ string, req adapter.Completion) (string, adapter.Usage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	out, err := f.complete(req)
	return out, adapter.Usage{}, err
}

func (f *fakeLLM) Stream(_ context.Context, _ string, msgs []adapter.Message, onChunk func(string) error) (adapter.Usage, error) {
	f.mu.Lock()
	f.streamed = append(f.streamed, msgs)
	f.mu.Unlock()
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return adapter.Usage{}, err
		}
	}
	return adapter.Usage{}, f.streamErr
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeVectors struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string][]adapter.Point
	searches    []searchCall
	dropped     []string
}

type searchCall struct {
	collection string
	limit      int
	filter     *adapter.MatchAny
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{collections: map[string]int{}, points: map[string][]adapter.Point{}}
}

func (f *fakeVectors) EnsureCollection(_ context.Context, name string, dim int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[name] = dim
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, collection string, points []adapter.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeVectors) Search(_ context.Context, collection string, _ []float32, limit int, filter *adapter.MatchAny) ([]adapter.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, searchCall{collection: collection, limit: limit, filter: filter})
	var out []adapter.ScoredPoint
	for _, p := range f.points[collection] {
		if filter != nil && !matches(p.Payload[filter.Key], filter.Values) {
			continue
		}
		out = append(out, adapter.ScoredPoint{ID: p.ID, Score: 1, Payload: p.Payload})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeVectors) Points(_ context.Context, collection string, filter adapter.MatchAny, limit int) ([]adapter.ScoredPoint, error) {
	return f.Search(context.Background(), collection, nil, limit, &filter)
}

func (f *fakeVectors) DeletePoints(_ context.Context, collection string, filter adapter.MatchAny) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.points[collection][:0]
	for _, p := range f.points[collection] {
		if !matches(p.Payload[filter.Key], filter.Values) {
			kept = append(kept, p)
		}
	}
	f.points[collection] = kept
	return nil
}

func (f *fakeVectors) DropCollection(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, collection)
	delete(f.points, collection)
	f.dropped = append(f.dropped, collection)
	return nil
}

func matches(v any, values []string) bool {
	s, _ := v.(string)
	for _, want := range values {
		if s == want {
			return true
		}
	}
	return false
}

type fakeWeb struct {
	mu      sync.Mutex
	results map[string][]adapter.WebResult
	fail    string
	err     error
	maxSeen []int
}

func (f *fakeWeb) Search(_ context.Context, _ string, query string, maxResults int) ([]adapter.WebResult, error) {
	f.mu.Lock()
	f.maxSeen = append(f.maxSeen, maxResults)
	f.mu.Unlock()
	if f.fail != "" && strings.Contains(query, f.fail) {
		return nil, f.err
	}
	return f.results[query], nil
}
