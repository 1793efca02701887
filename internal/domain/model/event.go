package model

type EventType string

const (
	EventLifecycle EventType = ""
	EventStream    EventType = "stream"
	EventInit      EventType = "init"
)

type Step string

const (
	StepStart    Step = "start"
	StepComplete Step = "complete"
)

// Event is what stream subscribers receive, one JSON object per SSE frame.
// Lifecycle events carry Status and Step, stream events carry Chunk, and the
// init snapshot carries Job and Messages.
type Event struct {
	Type      EventType  `json:"type,omitempty"`
	JobID     string     `json:"jobId,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	Status    Status     `json:"status,omitempty"`
	Step      Step       `json:"step,omitempty"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
	Chunk     string     `json:"chunk,omitempty"`
	Job       *Job       `json:"job,omitempty"`
	Messages  []*Message `json:"messages,omitempty"`
}

func LifecycleEvent(m *Message, step Step, data any) Event {
	return Event{JobID: m.JobID, MessageID: m.ID, Status: m.Status, Step: step, Data: data}
}

func ErrorEvent(m *Message) Event {
	return Event{JobID: m.JobID, MessageID: m.ID, Status: StatusError, Error: m.Data.Error}
}

func StreamEvent(jobID, messageID, chunk string) Event {
	return Event{Type: EventStream, JobID: jobID, MessageID: messageID, Status: StatusCompiling, Chunk: chunk}
}

func InitEvent(job *Job, messages []*Message) Event {
	return Event{Type: EventInit, Job: job, Messages: messages}
}

// Terminal reports whether the event closes a message's pipeline.
func (e Event) Terminal() bool {
	return e.Type == EventLifecycle && e.Status.Terminal()
}
