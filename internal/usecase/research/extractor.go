package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	ports "research-orchestrator/internal/domain/ports/usecase"
)

const (
	collectionTopK = 5
	documentTopK   = 3
)

var _ ports.Extractor = (*extractor)(nil)

type extractor struct {
	llm         adapter.LLMClient
	embedder    adapter.Embedder
	vectors     adapter.VectorStore
	concurrency int
	log         *zerolog.Logger
}

func NewExtractor(llm adapter.LLMClient, embedder adapter.Embedder, vectors adapter.VectorStore, concurrency int, logger *zerolog.Logger) *extractor {
	if concurrency <= 0 {
		concurrency = 4
	}
	l := logger.With().Str("component", "Extractor").Logger()
	return &extractor{llm: llm, embedder: embedder, vectors: vectors, concurrency: concurrency, log: &l}
}

// Extract asks the model for facts per sub-question. A question that fails
// is logged and contributes nothing; the stage only fails when ctx ends.
func (e *extractor) Extract(ctx context.Context, creds model.Credentials, req ports.ExtractRequest) (*model.ExtractionResult, error) {
	perQuestion := make([][]model.Fact, len(req.SubQuestions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, q := range req.SubQuestions {
		g.Go(func() error {
			facts, err := e.extractOne(gctx, creds, req, q)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Warn().Err(err).Str("question", q).Msg("extraction failed for sub-question")
				return nil
			}
			perQuestion[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &model.ExtractionResult{Facts: []model.Fact{}}
	for _, facts := range perQuestion {
		out.Facts = append(out.Facts, facts...)
	}
	return out, nil
}

func (e *extractor) extractOne(ctx context.Context, creds model.Credentials, req ports.ExtractRequest, question string) ([]model.Fact, error) {
	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vecs))
	}

	hits, err := e.vectors.Search(ctx, req.Collection, vecs[0], collectionTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}
	if len(req.DocumentIDs) > 0 && req.UserID != "" {
		docHits, err := e.vectors.Search(ctx, model.KnowledgeBase(req.UserID), vecs[0], documentTopK,
			&adapter.MatchAny{Key: "documentId", Values: req.DocumentIDs})
		if err != nil {
			e.log.Warn().Err(err).Msg("knowledge base search failed")
		} else {
			hits = append(hits, docHits...)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	titles := make(map[string]string)
	var b strings.Builder
	for _, h := range hits {
		src := payloadString(h.Payload, "source")
		if t := payloadString(h.Payload, "title"); t != "" {
			titles[src] = t
		}
		fmt.Fprintf(&b, "Source: %s\nText: %s\n\n", src, payloadString(h.Payload, "text"))
	}

	raw, _, err := e.llm.Complete(ctx, creds.LLMKey, adapter.Completion{
		Messages: []adapter.Message{
			{Role: "system", Content: extractorSystem},
			{Role: "user", Content: extractorPrompt(question, b.String())},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Facts []model.Fact `json:"facts"`
	}
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, err
	}

	facts := parsed.Facts[:0]
	for _, f := range parsed.Facts {
		if strings.TrimSpace(f.Assertion) == "" {
			continue
		}
		if f.Title == "" {
			f.Title = titles[f.Source]
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}
