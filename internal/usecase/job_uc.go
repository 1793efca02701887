package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/domain/ports/repository"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

const (
	listLimit      = 100
	staleBatch     = 500
	maxTitleRunes  = 200
	busyReason     = "Server is busy, please try again later."
	interruptedMsg = "pipeline interrupted"
)

type JobUseCase interface {
	// Submit starts a new job, or a new turn of ParentJobID, and returns
	// before the pipeline runs.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	AddMessage(ctx context.Context, userID, jobID, content, kind string) (*SubmitResult, error)
	GetJob(ctx context.Context, userID, jobID string) (*JobView, error)
	ListJobs(ctx context.Context, userID string) ([]*model.Job, error)
	Thread(ctx context.Context, jobID string) ([]*model.Message, error)
	// Snapshot builds the init event a stream subscriber receives first.
	Snapshot(ctx context.Context, userID, jobID string) (model.Event, error)
	DeleteJob(ctx context.Context, userID, jobID string) error
	// FailStale marks stored turns that no process is running anymore as
	// failed and returns how many it changed.
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type SubmitRequest struct {
	UserID      string
	Query       string
	ParentJobID string
	Kind        string
	Depth       string
}

type SubmitResult struct {
	JobID     string `json:"jobId"`
	MessageID string `json:"messageId"`
}

type JobView struct {
	Job      *model.Job       `json:"job"`
	Messages []*model.Message `json:"messages"`
}

type jobUC struct {
	jobs     repository.JobRepository
	messages repository.MessageRepository
	tm       repository.TransactionManager
	state    StateStore
	events   adapter.EventPublisher
	runner   Runner
	creds    CredentialProvider
	stages   Stages
	cfg      config.PipelineConfig
	log      *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	messages repository.MessageRepository,
	tm repository.TransactionManager,
	state StateStore,
	events adapter.EventPublisher,
	runner Runner,
	creds CredentialProvider,
	stages Stages,
	cfg config.PipelineConfig,
	logger *zerolog.Logger,
) *jobUC {
	l := logger.With().Str("component", "JobUC").Logger()
	return &jobUC{
		jobs:     jobs,
		messages: messages,
		tm:       tm,
		state:    state,
		events:   events,
		runner:   runner,
		creds:    creds,
		stages:   stages,
		cfg:      cfg,
		log:      &l,
	}
}

func (u *jobUC) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	defer logging.TraceDuration(u.log, "JobUC.Submit")()

	query := strings.TrimSpace(req.Query)
	if query == "" || req.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	depth, err := model.ParseDepth(req.Depth)
	if err != nil {
		return nil, err
	}

	now := model.Now()
	var job *model.Job
	isNew := req.ParentJobID == ""
	if isNew {
		job, err = model.NewJob(req.UserID, title(query), depth, now)
		if err != nil {
			return nil, err
		}
	} else {
		job, err = loadOwnedJob(ctx, u.state, u.jobs, req.UserID, req.ParentJobID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Depth) == "" && job.Depth != "" {
			depth = job.Depth
		}
	}

	// Messages go in before the job turns active, so a turn settling
	// concurrently already sees this one running.
	user, assistant := model.NewPair(job.ID, query, kind, now)
	u.state.PutMessage(user)
	u.state.PutMessage(assistant)
	if isNew {
		u.state.PutJob(job)
	} else {
		job = u.activate(job, now)
	}

	u.persist(ctx, "job", func(ctx context.Context, tx repository.Tx) error {
		if isNew {
			if err := u.jobs.Create(ctx, tx, job); err != nil {
				return err
			}
		} else if err := u.jobs.UpdateStatus(ctx, tx, job.ID, job.Status, job.UpdatedAt); err != nil {
			return err
		}
		if err := u.messages.Create(ctx, tx, user); err != nil {
			return err
		}
		return u.messages.Create(ctx, tx, assistant)
	})

	r := u.newRun(job, user, assistant, depth)
	if err := u.runner.Submit(r.execute); err != nil {
		r.log.Warn().Err(err).Msg("pipeline not scheduled")
		r.fail(context.WithoutCancel(ctx), busyReason)
		r.settle(context.WithoutCancel(ctx))
	}

	u.log.Info().
		Str("job_id", job.ID).
		Str("message_id", assistant.ID).
		Str("kind", string(kind)).
		Bool("new_job", isNew).
		Msg("turn submitted")
	return &SubmitResult{JobID: job.ID, MessageID: assistant.ID}, nil
}

// activate marks a follow-up's job active. A live job is updated in place so
// concurrent document links survive; a stored one becomes live.
func (u *jobUC) activate(job *model.Job, now time.Time) *model.Job {
	live, err := u.state.UpdateJob(job.ID, func(j *model.Job) error {
		j.Status = model.JobActive
		j.UpdatedAt = now
		return nil
	})
	if err == nil {
		return live
	}
	job.Status = model.JobActive
	job.UpdatedAt = now
	u.state.PutJob(job)
	return job
}

func (u *jobUC) AddMessage(ctx context.Context, userID, jobID, content, kind string) (*SubmitResult, error) {
	if jobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.Submit(ctx, SubmitRequest{UserID: userID, Query: content, ParentJobID: jobID, Kind: kind})
}

func (u *jobUC) GetJob(ctx context.Context, userID, jobID string) (*JobView, error) {
	job, err := loadOwnedJob(ctx, u.state, u.jobs, userID, jobID)
	if err != nil {
		return nil, err
	}
	msgs, err := u.Thread(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, Messages: msgs}, nil
}

func (u *jobUC) ListJobs(ctx context.Context, userID string) ([]*model.Job, error) {
	stored, err := u.jobs.ListByUser(ctx, repository.NoTX, userID, listLimit)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(stored))
	out := make([]*model.Job, 0, len(stored))
	for _, j := range stored {
		byID[j.ID] = len(out)
		out = append(out, j)
	}
	for _, live := range u.state.JobsByUser(userID) {
		if i, ok := byID[live.ID]; ok {
			out[i] = live
			continue
		}
		out = append(out, live)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out, nil
}

func (u *jobUC) Snapshot(ctx context.Context, userID, jobID string) (model.Event, error) {
	view, err := u.GetJob(ctx, userID, jobID)
	if err != nil {
		return model.Event{}, err
	}
	return model.InitEvent(view.Job, view.Messages), nil
}

func (u *jobUC) DeleteJob(ctx context.Context, userID, jobID string) error {
	if _, err := loadOwnedJob(ctx, u.state, u.jobs, userID, jobID); err != nil {
		return err
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.messages.DeleteByJob(ctx, tx, jobID); err != nil {
			return err
		}
		// A job whose first write failed only exists in memory.
		if err := u.jobs.Delete(ctx, tx, jobID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.state.DeleteJob(jobID)
	u.log.Info().Str("job_id", jobID).Msg("job deleted")
	return nil
}

func (u *jobUC) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := model.Now()
	stale, err := u.messages.ListStale(ctx, repository.NoTX, now.Add(-olderThan), staleBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range stale {
		if _, live := u.state.Message(m.ID); live {
			continue
		}
		if err := m.Fail(interruptedMsg, now); err != nil {
			continue
		}
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.messages.Update(ctx, tx, m); err != nil {
				return err
			}
			return u.jobs.UpdateStatus(ctx, tx, m.JobID, model.JobError, now)
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		metrics.AddReconciled(n)
		u.log.Warn().Int("count", n).Msg("failed interrupted pipeline turns")
	}
	return n, nil
}

// persist runs a write that must not fail the caller: errors are logged and
// counted. It outlives the request context but not the persist timeout.
func (u *jobUC) persist(ctx context.Context, entity string, fn func(ctx context.Context, tx repository.Tx) error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.PersistTimeout)
	defer cancel()
	if err := u.tm.WithTx(pctx, pgx.TxOptions{}, fn); err != nil {
		metrics.IncWriteFailure(entity)
		logging.With(ctx, u.log).Error().Err(err).Str("entity", entity).Msg("persist failed")
	}
}

func title(query string) string {
	r := []rune(query)
	if len(r) <= maxTitleRunes {
		return query
	}
	return strings.TrimSpace(string(r[:maxTitleRunes])) + "…"
}
