package research

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	ports "research-orchestrator/internal/domain/ports/usecase"
)

var _ ports.Planner = (*planner)(nil)

type planner struct {
	llm adapter.LLMClient
	log *zerolog.Logger
}

func NewPlanner(llm adapter.LLMClient, logger *zerolog.Logger) *planner {
	l := logger.With().Str("component", "Planner").Logger()
	return &planner{llm: llm, log: &l}
}

func (p *planner) Plan(ctx context.Context, creds model.Credentials, query string, depth model.Depth) (*model.PlanResult, error) {
	raw, _, err := p.llm.Complete(ctx, creds.LLMKey, adapter.Completion{
		Messages: []adapter.Message{
			{Role: "system", Content: plannerSystem},
			{Role: "user", Content: plannerPrompt(query, depth)},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}
	var plan model.PlanResult
	if err := decodeJSON(raw, &plan); err != nil {
		return nil, err
	}

	plan.SubQuestions = compact(plan.SubQuestions)
	plan.ExtractionFields = compact(plan.ExtractionFields)
	queries := plan.SearchQueries[:0]
	for _, q := range plan.SearchQueries {
		if model.ValidSearchQuery(q) {
			queries = append(queries, strings.TrimSpace(q))
		}
	}
	plan.SearchQueries = queries
	if len(plan.SearchQueries) == 0 {
		return nil, errors.New("Plan missing search queries")
	}
	// The extractor needs something to ask; fall back to the query itself.
	if len(plan.SubQuestions) == 0 {
		plan.SubQuestions = []string{query}
	}

	p.log.Debug().
		Int("sub_questions", len(plan.SubQuestions)).
		Int("search_queries", len(plan.SearchQueries)).
		Int("extraction_fields", len(plan.ExtractionFields)).
		Msg("plan generated")
	return &plan, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
