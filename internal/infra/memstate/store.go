// Package memstate holds the live copy of jobs and messages while their
// pipelines run and for a short grace window afterwards.
package memstate

import (
	"sort"
	"sync"
	"time"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
)

// Store is safe for concurrent use. Readers always get copies; writers go
// through Put* or the Update* callbacks, which run under the store lock.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*model.Job
	messages   map[string]*model.Message
	byJob      map[string][]string // message ids in insertion order
	timers     map[string]*time.Timer
	tombstones map[string]time.Time

	grace        time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
}

type Option func(*Store)

// WithTombstoneTTL sets how long a deleted job keeps rejecting writes.
func WithTombstoneTTL(d time.Duration) Option {
	return func(s *Store) { s.tombstoneTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(grace time.Duration, opts ...Option) *Store {
	s := &Store{
		jobs:         make(map[string]*model.Job),
		messages:     make(map[string]*model.Message),
		byJob:        make(map[string][]string),
		timers:       make(map[string]*time.Timer),
		tombstones:   make(map[string]time.Time),
		grace:        grace,
		tombstoneTTL: time.Hour,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PutJob inserts or replaces a job. It reports false for a deleted job.
func (s *Store) PutJob(j *model.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletedLocked(j.ID) {
		return false
	}
	s.jobs[j.ID] = j.Clone()
	return true
}

func (s *Store) Job(id string) (*model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// JobsByUser returns the live jobs of a user, newest first.
func (s *Store) JobsByUser(userID string) []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Job
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// UpdateJob applies fn to the live job and returns the updated copy.
func (s *Store) UpdateJob(id string, fn func(j *model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletedLocked(id) {
		return nil, domain.ErrJobDeleted
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := j.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	s.jobs[id] = c
	return c.Clone(), nil
}

// UpdateJobTurns is UpdateJob with the job's live messages passed to fn.
// Both are read under the same lock, so fn sees a consistent view.
func (s *Store) UpdateJobTurns(id string, fn func(j *model.Job, turns []*model.Message) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletedLocked(id) {
		return nil, domain.ErrJobDeleted
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	turns := make([]*model.Message, 0, len(s.byJob[id]))
	for _, mid := range s.byJob[id] {
		if m, ok := s.messages[mid]; ok {
			turns = append(turns, m.Clone())
		}
	}
	c := j.Clone()
	if err := fn(c, turns); err != nil {
		return nil, err
	}
	s.jobs[id] = c
	return c.Clone(), nil
}

// PutMessage inserts or replaces a message. It reports false when the
// message's job was deleted.
func (s *Store) PutMessage(m *model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletedLocked(m.JobID) {
		return false
	}
	if _, ok := s.messages[m.ID]; !ok {
		s.byJob[m.JobID] = append(s.byJob[m.JobID], m.ID)
	}
	s.messages[m.ID] = m.Clone()
	return true
}

func (s *Store) Message(id string) (*model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Messages returns the live messages of a job in insertion order.
func (s *Store) Messages(jobID string) []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byJob[jobID]
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// UpdateMessage applies fn to the live message. fn sees a private copy that
// only replaces the stored one when fn succeeds.
func (s *Store) UpdateMessage(id string, fn func(m *model.Message) error) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.deletedLocked(m.JobID) {
		return nil, domain.ErrJobDeleted
	}
	c := m.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	s.messages[id] = c
	return c.Clone(), nil
}

// ScheduleEviction drops the message after the grace window. The job entry
// goes with its last message.
func (s *Store) ScheduleEviction(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return
	}
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
	}
	s.timers[messageID] = time.AfterFunc(s.grace, func() { s.evict(messageID) })
}

func (s *Store) evict(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, messageID)
	m, ok := s.messages[messageID]
	if !ok {
		return
	}
	delete(s.messages, messageID)
	ids := s.byJob[m.JobID]
	for i, id := range ids {
		if id == messageID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byJob, m.JobID)
		delete(s.jobs, m.JobID)
		return
	}
	s.byJob[m.JobID] = ids
}

// DeleteJob forgets a job and its messages and remembers the deletion, so a
// pipeline still running for it can neither re-insert it nor publish.
func (s *Store) DeleteJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byJob[jobID] {
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
		delete(s.messages, id)
	}
	delete(s.byJob, jobID)
	delete(s.jobs, jobID)

	now := s.now()
	for id, at := range s.tombstones {
		if now.Sub(at) > s.tombstoneTTL {
			delete(s.tombstones, id)
		}
	}
	s.tombstones[jobID] = now
}

// Deleted reports whether the job was deleted within the tombstone TTL.
func (s *Store) Deleted(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deletedLocked(jobID)
}

func (s *Store) deletedLocked(jobID string) bool {
	at, ok := s.tombstones[jobID]
	return ok && s.now().Sub(at) <= s.tombstoneTTL
}

// Len returns the number of live messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
