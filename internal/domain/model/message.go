package model

import (
	"fmt"
	"strings"
	"time"

	"research-orchestrator/internal/domain"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind selects which pipeline an assistant turn runs.
type Kind string

const (
	KindResearch Kind = "research"
	KindChat     Kind = "chat"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindResearch:
		return KindResearch, nil
	case KindChat:
		return KindChat, nil
	}
	return "", fmt.Errorf("%w: type %q", domain.ErrInvalidArgument, s)
}

type Status string

const (
	StatusPlanning   Status = "planning"
	StatusSearching  Status = "searching"
	StatusExtracting Status = "extracting"
	StatusCompiling  Status = "compiling"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

var (
	researchFlow = []Status{StatusPlanning, StatusSearching, StatusExtracting, StatusCompiling, StatusDone}
	chatFlow     = []Status{StatusCompiling, StatusDone}
)

// Flow is the forward status sequence for a turn kind.
func Flow(k Kind) []Status {
	if k == KindChat {
		return chatFlow
	}
	return researchFlow
}

// Message is one turn of a job's conversation. User turns carry content,
// assistant turns carry a pipeline status and its stage outputs.
type Message struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"type"`
	Status    Status    `json:"status,omitempty"`
	Data      Payload   `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPair creates a user turn and the assistant turn that answers it. The
// assistant is stamped one millisecond later so it always sorts after.
func NewPair(jobID, content string, kind Kind, now time.Time) (*Message, *Message) {
	now = now.Truncate(time.Millisecond)
	user := &Message{
		ID:        ulid.Make().String(),
		JobID:     jobID,
		Role:      RoleUser,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	later := now.Add(time.Millisecond)
	assistant := &Message{
		ID:        ulid.Make().String(),
		JobID:     jobID,
		Role:      RoleAssistant,
		Kind:      kind,
		Status:    Flow(kind)[0],
		CreatedAt: later,
		UpdatedAt: later,
	}
	return user, assistant
}

// Advance moves the message to status to, optionally recording a stage
// output. Re-entering the current status is allowed so a stage can report
// start and complete; otherwise only the next status in the flow is.
func (m *Message) Advance(to Status, out StageOutput, now time.Time) error {
	if m.Role != RoleAssistant {
		return fmt.Errorf("%w: %s message has no pipeline", domain.ErrInvalidTransition, m.Role)
	}
	if m.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", domain.ErrInvalidTransition, m.Status)
	}
	if to == StatusError {
		return fmt.Errorf("%w: use Fail to record errors", domain.ErrInvalidTransition)
	}
	if to != m.Status && to != m.next() {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.Status, to)
	}
	if out != nil && out.Stage() != to {
		return fmt.Errorf("%w: %s output recorded at %s", domain.ErrInvalidTransition, out.Stage(), to)
	}

	data := m.Data
	if out != nil {
		out.apply(&data)
	}
	if to != m.Status {
		if err := data.Validate(m.Kind, to); err != nil {
			return err
		}
	}
	m.Data = data
	m.Status = to
	m.UpdatedAt = now
	return nil
}

// Fail moves a running message to error. Terminal messages are left alone.
func (m *Message) Fail(reason string, now time.Time) error {
	if m.Role != RoleAssistant || m.Status.Terminal() {
		return fmt.Errorf("%w: cannot fail %s message in %q", domain.ErrInvalidTransition, m.Role, m.Status)
	}
	if reason == "" {
		reason = "unknown error"
	}
	m.Data.Error = reason
	m.Status = StatusError
	m.UpdatedAt = now
	return nil
}

func (m *Message) next() Status {
	flow := Flow(m.Kind)
	for i, s := range flow {
		if s == m.Status && i+1 < len(flow) {
			return flow[i+1]
		}
	}
	return ""
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
