//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/domain/ports/repository"
	ports "research-orchestrator/internal/domain/ports/usecase"
	"research-orchestrator/internal/infra/worker"
)

// --- Transactions ---

type MockTxManager struct{}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- Jobs ---

type MockJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	createErr error
}

func NewMockJobRepo() *MockJobRepo { return &MockJobRepo{jobs: map[string]*model.Job{}} }

func (r *MockJobRepo) Create(_ context.Context, _ repository.Tx, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.jobs[j.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[j.ID] = j.Clone()
	return nil
}

func (r *MockJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *MockJobRepo) ListByUser(_ context.Context, _ repository.Tx, userID string, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockJobRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.JobStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status, j.UpdatedAt = status, at
	return nil
}

func (r *MockJobRepo) SetDocuments(_ context.Context, _ repository.Tx, id string, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Documents, j.UpdatedAt = append([]string{}, ids...), at
	return nil
}

func (r *MockJobRepo) RemoveDocument(_ context.Context, _ repository.Tx, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		kept := j.Documents[:0]
		for _, d := range j.Documents {
			if d != documentID {
				kept = append(kept, d)
			}
		}
		j.Documents = kept
	}
	return nil
}

func (r *MockJobRepo) Delete(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *MockJobRepo) get(id string) (*model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// --- Messages ---

type MockMessageRepo struct {
	mu        sync.Mutex
	msgs      map[string]*model.Message
	updateErr error
	updates   int
}

func NewMockMessageRepo() *MockMessageRepo { return &MockMessageRepo{msgs: map[string]*model.Message{}} }

func (r *MockMessageRepo) Create(_ context.Context, _ repository.Tx, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[m.ID] = m.Clone()
	return nil
}

func (r *MockMessageRepo) Update(_ context.Context, _ repository.Tx, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.msgs[m.ID]; !ok {
		return domain.ErrNotFound
	}
	r.msgs[m.ID] = m.Clone()
	return nil
}

func (r *MockMessageRepo) ListByJob(_ context.Context, _ repository.Tx, jobID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.msgs {
		if m.JobID == jobID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (r *MockMessageRepo) DeleteByJob(_ context.Context, _ repository.Tx, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.msgs {
		if m.JobID == jobID {
			delete(r.msgs, id)
		}
	}
	return nil
}

func (r *MockMessageRepo) ListStale(_ context.Context, _ repository.Tx, before time.Time, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.msgs {
		if m.Role == model.RoleAssistant && !m.Status.Terminal() && m.UpdatedAt.Before(before) {
			out = append(out, m.Clone())
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockMessageRepo) get(id string) (*model.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// --- Users ---

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{users: map[string]*model.User{}} }

func (r *MockUserRepo) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// fakeVault "encrypts" by prefixing the owner, which is enough to check
// that keys are bound to their user.
type fakeVault struct{}

func (fakeVault) Seal(userID string, p model.Provider, plaintext string) (string, error) {
	return userID + "|" + string(p) + "|" + plaintext, nil
}

func (fakeVault) Open(userID string, p model.Provider, sealed string) (string, error) {
	prefix := userID + "|" + string(p) + "|"
	if !strings.HasPrefix(sealed, prefix) {
		return "", domain.ErrInvalidArgument
	}
	return strings.TrimPrefix(sealed, prefix), nil
}

// --- Documents ---

type MockDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func NewMockDocumentRepo() *MockDocumentRepo { return &MockDocumentRepo{docs: map[string]*model.Document{}} }

func (r *MockDocumentRepo) Create(_ context.Context, _ repository.Tx, d *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs[d.ID] = &cp
	return nil
}

func (r *MockDocumentRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MockDocumentRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockDocumentRepo) ListByIDs(_ context.Context, _ repository.Tx, ids []string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, id := range ids {
		if d, ok := r.docs[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockDocumentRepo) Touch(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.LastAccessedAt = &at
	return nil
}

func (r *MockDocumentRepo) Delete(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

// --- Pipeline collaborators ---

// inlineRunner runs each task before Submit returns.
type inlineRunner struct{ err error }

func (r *inlineRunner) Submit(task worker.Task) error {
	if r.err != nil {
		return r.err
	}
	return task(context.Background())
}

type staticCreds struct {
	creds model.Credentials
	err   error
}

func (s staticCreds) Credentials(context.Context, string) (model.Credentials, error) {
	return s.creds, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(evt model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) all() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}

type stubPlanner struct {
	fn func(ctx context.Context, query string) (*model.PlanResult, error)
}

func (s *stubPlanner) Plan(ctx context.Context, _ model.Credentials, query string, _ model.Depth) (*model.PlanResult, error) {
	if s.fn != nil {
		return s.fn(ctx, query)
	}
	return &model.PlanResult{SubQuestions: []string{"what?"}, SearchQueries: []string{"q1"}, ExtractionFields: []string{"dates"}}, nil
}

type stubSearcher struct {
	err     error
	dropped chan string
}

func newStubSearcher() *stubSearcher { return &stubSearcher{dropped: make(chan string, 8)} }

func (s *stubSearcher) Search(_ context.Context, _ model.Credentials, collection string, _ []string, _ model.Depth) (*model.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.SearchResult{CollectionName: collection, Chunks: []model.Chunk{{ID: "c1", Text: "t", Source: "https://s"}}}, nil
}

func (s *stubSearcher) Drop(_ context.Context, collection string) error {
	s.dropped <- collection
	return nil
}

type stubExtractor struct {
	got ports.ExtractRequest
}

func (s *stubExtractor) Extract(_ context.Context, _ model.Credentials, req ports.ExtractRequest) (*model.ExtractionResult, error) {
	s.got = req
	return &model.ExtractionResult{Facts: []model.Fact{{Source: "https://s", Snippet: "t", Assertion: "a"}}}, nil
}

type stubCompiler struct {
	chunks  []string
	history []adapter.Message
}

func (s *stubCompiler) Compile(_ context.Context, _ model.Credentials, _ string, ex *model.ExtractionResult, emit func(string) error) (*model.CompileResult, error) {
	var b strings.Builder
	for _, c := range s.chunks {
		b.WriteString(c)
		if err := emit(c); err != nil {
			return nil, err
		}
	}
	return &model.CompileResult{Summary: "sum", Detailed: b.String(), Citations: []model.Citation{{Source: ex.Facts[0].Source}}}, nil
}

func (s *stubCompiler) Converse(_ context.Context, _ model.Credentials, history []adapter.Message, emit func(string) error) error {
	s.history = history
	for _, c := range s.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return 2 }

type memVectors struct {
	mu     sync.Mutex
	points map[string][]adapter.Point
}

func newMemVectors() *memVectors { return &memVectors{points: map[string][]adapter.Point{}} }

func (v *memVectors) EnsureCollection(context.Context, string, int) error { return nil }

func (v *memVectors) Upsert(_ context.Context, collection string, points []adapter.Point) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.points[collection] = append(v.points[collection], points...)
	return nil
}

func (v *memVectors) Search(context.Context, string, []float32, int, *adapter.MatchAny) ([]adapter.ScoredPoint, error) {
	return nil, nil
}

func (v *memVectors) Points(_ context.Context, collection string, filter adapter.MatchAny, limit int) ([]adapter.ScoredPoint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []adapter.ScoredPoint
	for _, p := range v.points[collection] {
		if p.Payload[filter.Key] == filter.Values[0] {
			out = append(out, adapter.ScoredPoint{ID: p.ID, Payload: p.Payload})
		}
	}
	return out, nil
}

func (v *memVectors) DeletePoints(_ context.Context, collection string, filter adapter.MatchAny) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.points[collection][:0]
	for _, p := range v.points[collection] {
		if p.Payload[filter.Key] != filter.Values[0] {
			kept = append(kept, p)
		}
	}
	v.points[collection] = kept
	return nil
}

func (v *memVectors) DropCollection(_ context.Context, collection string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.points, collection)
	return nil
}

func (v *memVectors) count(collection string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.points[collection])
}
