package usecase

import (
	"context"
	"sort"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/domain/ports/repository"
)

// Thread merges the stored turns of a job with the live ones. A live copy
// replaces its stored row, live-only turns are appended, and the result is
// ordered by creation time.
func (u *jobUC) Thread(ctx context.Context, jobID string) ([]*model.Message, error) {
	stored, err := u.messages.ListByJob(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	return mergeThread(stored, u.state.Messages(jobID)), nil
}

func mergeThread(stored, live []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(stored)+len(live))
	index := make(map[string]int, len(stored))
	for _, m := range stored {
		index[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range live {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// chatHistory turns the thread before upto into model messages. Failed or
// unfinished assistant turns are left out.
func chatHistory(thread []*model.Message, upto string) []adapter.Message {
	var out []adapter.Message
	for _, m := range thread {
		if m.Role == model.RoleUser {
			out = append(out, adapter.Message{Role: "user", Content: m.Content})
			if m.ID == upto {
				break
			}
			continue
		}
		if m.Status != model.StatusDone || m.Data.Final == nil || m.Data.Final.Detailed == "" {
			continue
		}
		out = append(out, adapter.Message{Role: "assistant", Content: m.Data.Final.Detailed})
	}
	return out
}
