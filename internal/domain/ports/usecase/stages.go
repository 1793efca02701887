package usecase

import (
	"context"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
)

// The four research stages plus the chat turn. The orchestrator only knows
// these interfaces; implementations live in usecase/research.

type Planner interface {
	Plan(ctx context.Context, creds model.Credentials, query string, depth model.Depth) (*model.PlanResult, error)
}

type Searcher interface {
	// Search fills collection with the content found for queries.
	Search(ctx context.Context, creds model.Credentials, collection string, queries []string, depth model.Depth) (*model.SearchResult, error)
	// Drop removes a collection created by Search.
	Drop(ctx context.Context, collection string) error
}

type ExtractRequest struct {
	UserID       string
	SubQuestions []string
	Collection   string
	DocumentIDs  []string // knowledge-base documents attached to the job
}

type Extractor interface {
	Extract(ctx context.Context, creds model.Credentials, req ExtractRequest) (*model.ExtractionResult, error)
}

type Compiler interface {
	// Compile streams the report through emit before returning it whole.
	Compile(ctx context.Context, creds model.Credentials, query string, ex *model.ExtractionResult, emit func(chunk string) error) (*model.CompileResult, error)
	// Converse streams a chat answer to the last turn of history.
	Converse(ctx context.Context, creds model.Credentials, history []adapter.Message, emit func(chunk string) error) error
}
