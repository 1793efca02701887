package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
	ports "research-orchestrator/internal/domain/ports/usecase"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/metrics"
)

const dropTimeout = 30 * time.Second

// run is one assistant turn's pipeline. It owns msg: every change goes
// through transition or fail, which mirror it into the state store,
// storage and the event bus in that order.
type run struct {
	uc         *jobUC
	userID     string
	jobID      string
	userMsgID  string
	msg        *model.Message
	query      string
	depth      model.Depth
	documents  []string
	collection string
	log        *zerolog.Logger
}

func (u *jobUC) newRun(job *model.Job, user, assistant *model.Message, depth model.Depth) *run {
	l := u.log.With().Str("job_id", job.ID).Str("message_id", assistant.ID).Logger()
	return &run{
		uc:        u,
		userID:    job.UserID,
		jobID:     job.ID,
		userMsgID: user.ID,
		msg:       assistant.Clone(),
		query:     user.Content,
		depth:     depth,
		documents: append([]string(nil), job.Documents...),
		log:       &l,
	}
}

// execute is the worker task. It never returns an error: failures end up
// on the message.
func (r *run) execute(ctx context.Context) error {
	ctx = logging.WithMessageID(logging.WithJobID(logging.WithUserID(ctx, r.userID), r.jobID), r.msg.ID)
	metrics.PipelineStarted()
	defer metrics.PipelineFinished()
	defer r.dropCollection()
	defer r.settle(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("pipeline panicked")
			r.fail(ctx, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	creds, err := r.uc.creds.Credentials(ctx, r.userID)
	if err == nil {
		if r.msg.Kind == model.KindChat {
			err = r.chat(ctx, creds)
		} else {
			err = r.research(ctx, creds)
		}
	}
	if err != nil {
		r.log.Warn().Err(err).Str("status", string(r.msg.Status)).Msg("pipeline failed")
		r.fail(ctx, err.Error())
	}
	return nil
}

func (r *run) research(ctx context.Context, creds model.Credentials) error {
	st := r.uc.stages
	timeouts := r.uc.cfg.StageTimeouts

	var plan *model.PlanResult
	err := r.stage(ctx, model.StatusPlanning, timeouts.Planning, func(ctx context.Context) (model.StageOutput, error) {
		p, err := st.Planner.Plan(ctx, creds, r.query, r.depth)
		plan = p
		return p, err
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, model.StatusSearching, timeouts.Searching, func(ctx context.Context) (model.StageOutput, error) {
		r.collection = model.SearchCollection(r.msg.ID)
		return st.Searcher.Search(ctx, creds, r.collection, plan.SearchQueries, r.depth)
	})
	if err != nil {
		return err
	}

	var extraction *model.ExtractionResult
	err = r.stage(ctx, model.StatusExtracting, timeouts.Extracting, func(ctx context.Context) (model.StageOutput, error) {
		ex, err := st.Extractor.Extract(ctx, creds, ports.ExtractRequest{
			UserID:       r.userID,
			SubQuestions: plan.SubQuestions,
			Collection:   r.collection,
			DocumentIDs:  r.documents,
		})
		extraction = ex
		return ex, err
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, model.StatusCompiling, timeouts.Compiling, func(ctx context.Context) (model.StageOutput, error) {
		return st.Compiler.Compile(ctx, creds, r.query, extraction, r.emit)
	})
	if err != nil {
		return err
	}
	return r.transition(ctx, model.StatusDone, model.StepComplete, nil)
}

func (r *run) chat(ctx context.Context, creds model.Credentials) error {
	thread, err := r.uc.Thread(ctx, r.jobID)
	if err != nil {
		return err
	}
	history := chatHistory(thread, r.userMsgID)

	err = r.stage(ctx, model.StatusCompiling, r.uc.cfg.StageTimeouts.Compiling, func(ctx context.Context) (model.StageOutput, error) {
		var answer strings.Builder
		err := r.uc.stages.Compiler.Converse(ctx, creds, history, func(chunk string) error {
			answer.WriteString(chunk)
			return r.emit(chunk)
		})
		if err != nil {
			return nil, err
		}
		return &model.CompileResult{Detailed: answer.String(), Citations: []model.Citation{}}, nil
	})
	if err != nil {
		return err
	}
	return r.transition(ctx, model.StatusDone, model.StepComplete, nil)
}

// stage reports start, runs fn under the stage timeout and reports complete
// with its output.
func (r *run) stage(ctx context.Context, status model.Status, timeout time.Duration, fn func(ctx context.Context) (model.StageOutput, error)) error {
	if err := r.transition(ctx, status, model.StepStart, nil); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(sctx)
	metrics.ObserveStage(string(status), time.Since(start), err == nil)
	if err != nil {
		if ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", status, timeout)
		}
		return err
	}
	return r.transition(ctx, status, model.StepComplete, out)
}

func (r *run) emit(chunk string) error {
	if chunk == "" || r.uc.state.Deleted(r.jobID) {
		return nil
	}
	r.uc.events.Publish(model.StreamEvent(r.jobID, r.msg.ID, chunk))
	return nil
}

// transition advances msg, then mirrors it. Once the job is deleted the
// live and stored copies are gone and nothing is published; the run still
// goes on to its end.
func (r *run) transition(ctx context.Context, to model.Status, step model.Step, out model.StageOutput) error {
	if err := r.msg.Advance(to, out, model.Now()); err != nil {
		return err
	}
	r.mirror(ctx)

	var data any
	switch {
	case to == model.StatusDone:
		data = r.msg.Data
	case out != nil:
		data = out
	}
	r.publish(model.LifecycleEvent(r.msg, step, data))
	return nil
}

func (r *run) fail(ctx context.Context, reason string) {
	if err := r.msg.Fail(reason, model.Now()); err != nil {
		return
	}
	r.mirror(ctx)
	r.publish(model.ErrorEvent(r.msg))
}

func (r *run) mirror(ctx context.Context) {
	snapshot := r.msg.Clone()
	_, err := r.uc.state.UpdateMessage(snapshot.ID, func(m *model.Message) error {
		*m = *snapshot
		return nil
	})
	deleted := errors.Is(err, domain.ErrJobDeleted) || r.uc.state.Deleted(r.jobID)
	if deleted {
		return
	}
	r.uc.persist(ctx, "message", func(ctx context.Context, tx repository.Tx) error {
		err := r.uc.messages.Update(ctx, tx, snapshot)
		if errors.Is(err, domain.ErrNotFound) && r.uc.state.Deleted(r.jobID) {
			return nil
		}
		return err
	})
}

func (r *run) publish(evt model.Event) {
	if r.uc.state.Deleted(r.jobID) {
		return
	}
	r.uc.events.Publish(evt)
}

// settle records the outcome on the job and schedules both turns of the
// pair for eviction.
func (r *run) settle(ctx context.Context) {
	if !r.msg.Status.Terminal() {
		r.fail(ctx, "pipeline stopped before completion")
	}
	metrics.IncPipelineRun(string(r.msg.Kind), string(r.msg.Status))
	if r.uc.state.Deleted(r.jobID) {
		return
	}

	// The job stays active while another turn of it is still running; the
	// last turn to finish settles it.
	now := model.Now()
	job, err := r.uc.state.UpdateJobTurns(r.jobID, func(j *model.Job, turns []*model.Message) error {
		if !model.Running(turns, r.msg.ID) {
			j.Settle(r.msg.Status, now)
		}
		return nil
	})
	status := model.JobDone
	if r.msg.Status == model.StatusError {
		status = model.JobError
	}
	if err == nil {
		status = job.Status
	}
	if status != model.JobActive {
		r.uc.persist(ctx, "job", func(ctx context.Context, tx repository.Tx) error {
			return r.uc.jobs.UpdateStatus(ctx, tx, r.jobID, status, now)
		})
	}

	r.uc.state.ScheduleEviction(r.userMsgID)
	r.uc.state.ScheduleEviction(r.msg.ID)
}

// dropCollection removes the turn's search collection in the background.
func (r *run) dropCollection() {
	if r.collection == "" {
		return
	}
	go func(collection string) {
		ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
		defer cancel()
		if err := r.uc.stages.Searcher.Drop(ctx, collection); err != nil {
			r.log.Warn().Err(err).Str("collection", collection).Msg("drop search collection failed")
		}
	}(r.collection)
}
