package usecase

import (
	"context"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
	ports "research-orchestrator/internal/domain/ports/usecase"
	"research-orchestrator/internal/infra/worker"
)

// StateStore is the live view of running jobs. memstate.Store implements it.
type StateStore interface {
	PutJob(j *model.Job) bool
	Job(id string) (*model.Job, bool)
	JobsByUser(userID string) []*model.Job
	UpdateJob(id string, fn func(j *model.Job) error) (*model.Job, error)
	UpdateJobTurns(id string, fn func(j *model.Job, turns []*model.Message) error) (*model.Job, error)
	PutMessage(m *model.Message) bool
	Message(id string) (*model.Message, bool)
	Messages(jobID string) []*model.Message
	UpdateMessage(id string, fn func(m *model.Message) error) (*model.Message, error)
	ScheduleEviction(messageID string)
	DeleteJob(jobID string)
	Deleted(jobID string) bool
}

// Runner detaches pipeline runs from the request that started them.
type Runner interface {
	Submit(task worker.Task) error
}

// CredentialProvider resolves the provider keys a pipeline runs with.
type CredentialProvider interface {
	Credentials(ctx context.Context, userID string) (model.Credentials, error)
}

// Stages bundles the research stage executors.
type Stages struct {
	Planner   ports.Planner
	Searcher  ports.Searcher
	Extractor ports.Extractor
	Compiler  ports.Compiler
}

// loadJob prefers the live copy and falls back to storage.
func loadJob(ctx context.Context, state StateStore, jobs repository.JobRepository, id string) (*model.Job, error) {
	if j, ok := state.Job(id); ok {
		return j, nil
	}
	return jobs.FindByID(ctx, repository.NoTX, id)
}

func loadOwnedJob(ctx context.Context, state StateStore, jobs repository.JobRepository, userID, id string) (*model.Job, error) {
	j, err := loadJob(ctx, state, jobs, id)
	if err != nil {
		return nil, err
	}
	if !j.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return j, nil
}
