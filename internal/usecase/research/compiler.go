package research

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	ports "research-orchestrator/internal/domain/ports/usecase"
)

const (
	noFactsSummary  = "No sufficient information found."
	noFactsDetailed = "Unable to compile a detailed report due to lack of extracted facts."
)

var _ ports.Compiler = (*compiler)(nil)

type compiler struct {
	llm adapter.LLMClient
	log *zerolog.Logger
}

func NewCompiler(llm adapter.LLMClient, logger *zerolog.Logger) *compiler {
	l := logger.With().Str("component", "Compiler").Logger()
	return &compiler{llm: llm, log: &l}
}

// Compile streams a cited markdown report, then asks for a short summary.
// Citation [n] refers to the n-th extracted fact.
func (c *compiler) Compile(ctx context.Context, creds model.Credentials, query string, ex *model.ExtractionResult, emit func(chunk string) error) (*model.CompileResult, error) {
	if ex == nil || len(ex.Facts) == 0 {
		return &model.CompileResult{Summary: noFactsSummary, Detailed: noFactsDetailed, Citations: []model.Citation{}}, nil
	}

	var report strings.Builder
	_, err := c.llm.Stream(ctx, creds.LLMKey, []adapter.Message{
		{Role: "system", Content: compilerSystem},
		{Role: "user", Content: compilerPrompt(query, ex.Facts)},
	}, func(chunk string) error {
		report.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		return nil, err
	}

	citations := make([]model.Citation, len(ex.Facts))
	for i, f := range ex.Facts {
		citations[i] = model.Citation{Source: f.Source, Snippet: f.Snippet, Title: f.Title}
	}
	return &model.CompileResult{
		Summary:   c.summarize(ctx, creds, query, report.String()),
		Detailed:  report.String(),
		Citations: citations,
	}, nil
}

// summarize never fails the stage: the report is already streamed, so a
// missing summary is logged and left empty.
func (c *compiler) summarize(ctx context.Context, creds model.Credentials, query, report string) string {
	raw, _, err := c.llm.Complete(ctx, creds.LLMKey, adapter.Completion{
		Messages: []adapter.Message{
			{Role: "system", Content: summarySystem},
			{Role: "user", Content: summaryPrompt(query, report)},
		},
		JSON:      true,
		MaxTokens: 400,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("summary generation failed")
		return ""
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		c.log.Warn().Err(err).Msg("summary was not valid json")
		return ""
	}
	return strings.TrimSpace(out.Summary)
}

func (c *compiler) Converse(ctx context.Context, creds model.Credentials, history []adapter.Message, emit func(chunk string) error) error {
	msgs := make([]adapter.Message, 0, len(history)+1)
	msgs = append(msgs, adapter.Message{Role: "system", Content: chatSystem})
	msgs = append(msgs, history...)
	_, err := c.llm.Stream(ctx, creds.LLMKey, msgs, emit)
	return err
}
