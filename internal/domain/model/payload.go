package model

import (
	"fmt"
	"strings"

	"research-orchestrator/internal/domain"
)

// Payload holds the outputs of the stages a message has passed. It is only
// filled through StageOutput values, each of which belongs to exactly one
// status. Applied outputs are never mutated afterwards, so copies may share
// them.
type Payload struct {
	Plan       *PlanResult       `json:"plan,omitempty"`
	Search     *SearchResult     `json:"search,omitempty"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Final      *CompileResult    `json:"final,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// StageOutput is implemented by the result of each pipeline stage.
type StageOutput interface {
	Stage() Status
	apply(p *Payload)
}

type PlanResult struct {
	SubQuestions     []string `json:"sub_questions"`
	SearchQueries    []string `json:"search_queries"`
	ExtractionFields []string `json:"extraction_fields"`
}

func (r *PlanResult) Stage() Status     { return StatusPlanning }
func (r *PlanResult) apply(p *Payload) { p.Plan = r }

type Chunk struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
}

type SearchResult struct {
	CollectionName string  `json:"collectionName"`
	Chunks         []Chunk `json:"chunks"`
}

func (r *SearchResult) Stage() Status     { return StatusSearching }
func (r *SearchResult) apply(p *Payload) { p.Search = r }

type Fact struct {
	Source    string `json:"source"`
	Snippet   string `json:"snippet"`
	Assertion string `json:"assertion"`
	Title     string `json:"title,omitempty"`
}

type ExtractionResult struct {
	Facts []Fact `json:"facts"`
}

func (r *ExtractionResult) Stage() Status     { return StatusExtracting }
func (r *ExtractionResult) apply(p *Payload) { p.Extraction = r }

type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
	Title   string `json:"title,omitempty"`
}

type CompileResult struct {
	Summary   string     `json:"summary"`
	Detailed  string     `json:"detailed"`
	Citations []Citation `json:"citations"`
}

func (r *CompileResult) Stage() Status     { return StatusCompiling }
func (r *CompileResult) apply(p *Payload) { p.Final = r }

// Validate reports whether the payload carries every output a message of
// the given kind must have once it has reached status.
func (p Payload) Validate(kind Kind, status Status) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s message in %s has no %s", domain.ErrInvalidArgument, kind, status, field)
	}
	if status == StatusError {
		if p.Error == "" {
			return missing("error")
		}
		return nil
	}
	if kind == KindChat {
		if status == StatusDone && p.Final == nil {
			return missing("final")
		}
		return nil
	}

	reached := 0
	for i, s := range researchFlow {
		if s == status {
			reached = i
		}
	}
	if reached >= 1 && p.Plan == nil {
		return missing("plan")
	}
	if reached >= 2 && p.Search == nil {
		return missing("search")
	}
	if reached >= 3 && p.Extraction == nil {
		return missing("extraction")
	}
	if reached >= 4 && p.Final == nil {
		return missing("final")
	}
	return nil
}

// ValidSearchQuery rejects empty queries and the "..." placeholders planners
// sometimes emit.
func ValidSearchQuery(q string) bool {
	q = strings.TrimSpace(q)
	return q != "" && !strings.Contains(q, "...")
}
