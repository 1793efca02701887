package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/stream"
	"research-orchestrator/internal/usecase"
)

type createJobRequest struct {
	Query       string `json:"query"`
	ParentJobID string `json:"parentJobId,omitempty"`
	Type        string `json:"type,omitempty"`
	Depth       string `json:"depth,omitempty"`
}

type addMessageRequest struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type threadResponse struct {
	JobID    string           `json:"jobId"`
	Messages []*model.Message `json:"messages"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := logging.UserID(ctx)

	var req createJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Query is required"})
		return
	}
	// Refuse up front rather than creating a turn that can only fail.
	if _, err := s.users.Credentials(ctx, userID); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	res, err := s.jobs.Submit(ctx, usecase.SubmitRequest{
		UserID:      userID,
		Query:       req.Query,
		ParentJobID: req.ParentJobID,
		Kind:        req.Type,
		Depth:       req.Depth,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req addMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Message content is required"})
		return
	}

	res, err := s.jobs.AddMessage(ctx, logging.UserID(ctx), jobID, req.Message, req.Type)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{JobID: view.Job.ID, Messages: view.Messages})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.jobs.DeleteJob(ctx, logging.UserID(ctx), jobID); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.streams.Unsubscribe(jobID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job deleted successfully"})
}

// streamJob attaches the caller as the job's only live subscriber. Access
// is checked before the response switches to text/event-stream so that
// failures still get a JSON status.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := logging.UserID(ctx)
	view, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	jobID := view.Job.ID
	ctx = logging.WithJobID(ctx, jobID)
	l := logging.With(ctx, s.log)

	sink, err := stream.NewSSESink(w)
	if err != nil {
		writeError(w, r, s.log, fmt.Errorf("open stream: %w", err))
		return
	}
	sess, err := s.streams.Subscribe(ctx, jobID, sink, func(sctx context.Context) (model.Event, error) {
		return s.jobs.Snapshot(sctx, userID, jobID)
	})
	if err != nil {
		l.Warn().Err(err).Msg("stream subscribe failed")
		return
	}
	defer sess.Close()
	l.Debug().Msg("stream opened")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
			if err := sink.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*usecase.JobView, bool) {
	ctx := r.Context()
	jobID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return nil, false
	}
	view, err := s.jobs.GetJob(ctx, logging.UserID(ctx), jobID)
	if err != nil {
		writeError(w, r, s.log, err)
		return nil, false
	}
	if view.Messages == nil {
		view.Messages = []*model.Message{}
	}
	return view, true
}
