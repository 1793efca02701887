package model

import (
	"fmt"
	"strings"
	"time"

	"research-orchestrator/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobActive JobStatus = "active"
	JobDone   JobStatus = "done"
	JobError  JobStatus = "error"
)

// Depth controls how wide the research fan-out is.
type Depth string

const (
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

func ParseDepth(s string) (Depth, error) {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case "", DepthStandard:
		return DepthStandard, nil
	case DepthDeep:
		return DepthDeep, nil
	}
	return "", fmt.Errorf("%w: depth %q", domain.ErrInvalidArgument, s)
}

// Job anchors a conversation thread to the query that started it.
type Job struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Status    JobStatus `json:"status"`
	Depth     Depth     `json:"depth,omitempty"`
	Documents []string  `json:"documents"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewJob(userID, title string, depth Depth, now time.Time) (*Job, error) {
	if userID == "" || strings.TrimSpace(title) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if depth == "" {
		depth = DepthStandard
	}
	return &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Status:    JobActive,
		Depth:     depth,
		Documents: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (j *Job) OwnedBy(userID string) bool { return j != nil && j.UserID == userID }

// Settle records the terminal status of the last turn to finish.
func (j *Job) Settle(s Status, now time.Time) {
	if s == StatusError {
		j.Status = JobError
	} else {
		j.Status = JobDone
	}
	j.UpdatedAt = now
}

// Running reports whether an assistant turn other than exceptID is still
// in progress.
func Running(turns []*Message, exceptID string) bool {
	for _, m := range turns {
		if m.ID != exceptID && m.Role == RoleAssistant && !m.Status.Terminal() {
			return true
		}
	}
	return false
}

func (j *Job) HasDocument(id string) bool {
	for _, d := range j.Documents {
		if d == id {
			return true
		}
	}
	return false
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Documents = append([]string(nil), j.Documents...)
	if c.Documents == nil {
		c.Documents = []string{}
	}
	return &c
}

// Now returns the current time at the millisecond precision used for
// ordering messages.
func Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
