package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	ports "research-orchestrator/internal/domain/ports/usecase"
)

var _ ports.Searcher = (*searcher)(nil)

type searcher struct {
	web      adapter.WebSearcher
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	chunker  *Chunker
	cfg      config.SearchConfig
	log      *zerolog.Logger
}

func NewSearcher(web adapter.WebSearcher, embedder adapter.Embedder, vectors adapter.VectorStore, chunker *Chunker, cfg config.SearchConfig, logger *zerolog.Logger) *searcher {
	l := logger.With().Str("component", "Searcher").Logger()
	return &searcher{web: web, embedder: embedder, vectors: vectors, chunker: chunker, cfg: cfg, log: &l}
}

func (s *searcher) Search(ctx context.Context, creds model.Credentials, collection string, queries []string, depth model.Depth) (*model.SearchResult, error) {
	var valid []string
	for _, q := range queries {
		if model.ValidSearchQuery(q) {
			valid = append(valid, strings.TrimSpace(q))
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid search queries", domain.ErrInvalidArgument)
	}

	if err := s.vectors.EnsureCollection(ctx, collection, s.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}

	maxResults := s.cfg.MaxResults
	if depth == model.DepthDeep {
		maxResults = s.cfg.DeepMaxResults
	}

	// Results are kept per query so the merge below is deterministic.
	results := make([][]adapter.WebResult, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, q := range valid {
		g.Go(func() error {
			res, err := s.web.Search(gctx, creds.SearchKey, q, maxResults)
			if err != nil {
				return fmt.Errorf("search %q: %w", q, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var chunks []model.Chunk
	for _, batch := range results {
		for _, r := range batch {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			for _, text := range s.chunker.Split(r.Content) {
				chunks = append(chunks, model.Chunk{ID: uuid.NewString(), Text: text, Source: r.URL, Title: r.Title})
			}
		}
	}
	s.log.Debug().
		Str("collection", collection).
		Int("queries", len(valid)).
		Int("sources", len(seen)).
		Int("chunks", len(chunks)).
		Msg("search results collected")

	if len(chunks) == 0 {
		return &model.SearchResult{CollectionName: collection, Chunks: []model.Chunk{}}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	points := make([]adapter.Point, len(chunks))
	for i, c := range chunks {
		points[i] = adapter.Point{
			ID:      c.ID,
			Vector:  vectors[i],
			Payload: map[string]any{"text": c.Text, "source": c.Source, "title": c.Title},
		}
	}
	if err := s.vectors.Upsert(ctx, collection, points); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	return &model.SearchResult{CollectionName: collection, Chunks: chunks}, nil
}

func (s *searcher) Drop(ctx context.Context, collection string) error {
	return s.vectors.DropCollection(ctx, collection)
}
