package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/domain/ports/repository"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/usecase/research"
)

// Compile-time check
var _ DocumentUseCase = (*documentUC)(nil)

type DocumentUseCase interface {
	// Upload indexes a file into the owner's knowledge base.
	Upload(ctx context.Context, userID string, in UploadInput) (*model.Document, error)
	List(ctx context.Context, userID string) ([]*model.Document, error)
	Get(ctx context.Context, userID, id string) (*model.Document, error)
	Chunks(ctx context.Context, userID, id string) (*DocumentChunks, error)
	Delete(ctx context.Context, userID, id string) error
	Attach(ctx context.Context, userID, documentID, jobID string) (*model.Job, error)
	Detach(ctx context.Context, userID, documentID, jobID string) (*model.Job, error)
	ListForJob(ctx context.Context, userID, jobID string) ([]*model.Document, error)
}

type UploadInput struct {
	FileName string
	MimeType string
	Content  []byte
}

type ChunkText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type DocumentChunks struct {
	DocumentID  string      `json:"documentId"`
	ChunkIDs    []string    `json:"chunkIds"`
	TotalChunks int         `json:"totalChunks"`
	Chunks      []ChunkText `json:"chunks"`
}

const (
	mimePlain    = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeHTML     = "text/html"
)

type documentUC struct {
	docs     repository.DocumentRepository
	jobs     repository.JobRepository
	tm       repository.TransactionManager
	state    StateStore
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	chunker  *research.Chunker
	html     *md.Converter
	maxBytes int64
	log      *zerolog.Logger
}

func NewDocumentUseCase(
	docs repository.DocumentRepository,
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	state StateStore,
	embedder adapter.Embedder,
	vectors adapter.VectorStore,
	chunker *research.Chunker,
	maxBytes int64,
	logger *zerolog.Logger,
) *documentUC {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	l := logger.With().Str("component", "DocumentUC").Logger()
	return &documentUC{
		docs:     docs,
		jobs:     jobs,
		tm:       tm,
		state:    state,
		embedder: embedder,
		vectors:  vectors,
		chunker:  chunker,
		html:     conv,
		maxBytes: maxBytes,
		log:      &l,
	}
}

func (d *documentUC) Upload(ctx context.Context, userID string, in UploadInput) (*model.Document, error) {
	defer logging.TraceDuration(d.log, "DocumentUC.Upload")()

	if userID == "" || len(in.Content) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if int64(len(in.Content)) > d.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", domain.ErrFileTooLarge, d.maxBytes)
	}
	mime, err := detectType(in.FileName, in.MimeType)
	if err != nil {
		return nil, err
	}
	text, title, err := d.extractText(mime, in.Content)
	if err != nil {
		return nil, err
	}
	chunks := d.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document has no text", domain.ErrInvalidArgument)
	}
	if title == "" {
		title = in.FileName
	}

	doc := model.NewDocument(userID, in.FileName, mime, int64(len(in.Content)), model.Now())
	vectors, err := d.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed document: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := d.vectors.EnsureCollection(ctx, doc.CollectionName, d.embedder.Dimensions()); err != nil {
		return nil, err
	}
	points := make([]adapter.Point, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		doc.ChunkIDs = append(doc.ChunkIDs, id)
		points[i] = adapter.Point{
			ID:     id,
			Vector: vectors[i],
			Payload: map[string]any{
				"text":       c,
				"source":     in.FileName,
				"title":      title,
				"documentId": doc.ID,
				"chunkIndex": i,
			},
		}
	}
	if err := d.vectors.Upsert(ctx, doc.CollectionName, points); err != nil {
		return nil, err
	}
	doc.TotalChunks = len(chunks)

	if err := d.docs.Create(ctx, repository.NoTX, doc); err != nil {
		d.removeVectors(ctx, doc)
		return nil, err
	}
	d.log.Info().Str("user_id", userID).Str("document_id", doc.ID).Int("chunks", doc.TotalChunks).Msg("document indexed")
	return doc, nil
}

func (d *documentUC) List(ctx context.Context, userID string) ([]*model.Document, error) {
	return d.docs.ListByUser(ctx, repository.NoTX, userID)
}

// owned hides other users' documents behind not found.
func (d *documentUC) owned(ctx context.Context, userID, id string) (*model.Document, error) {
	doc, err := d.docs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (d *documentUC) Get(ctx context.Context, userID, id string) (*model.Document, error) {
	doc, err := d.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := model.Now()
	if err := d.docs.Touch(ctx, repository.NoTX, id, now); err != nil {
		d.log.Warn().Err(err).Str("document_id", id).Msg("touch failed")
	} else {
		doc.LastAccessedAt = &now
	}
	return doc, nil
}

func (d *documentUC) Chunks(ctx context.Context, userID, id string) (*DocumentChunks, error) {
	doc, err := d.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	points, err := d.vectors.Points(ctx, doc.CollectionName, adapter.MatchAny{Key: "documentId", Values: []string{doc.ID}}, doc.TotalChunks)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(points))
	for _, p := range points {
		byID[p.ID], _ = p.Payload["text"].(string)
	}
	out := &DocumentChunks{DocumentID: doc.ID, ChunkIDs: doc.ChunkIDs, TotalChunks: doc.TotalChunks, Chunks: []ChunkText{}}
	for _, cid := range doc.ChunkIDs {
		if text, ok := byID[cid]; ok {
			out.Chunks = append(out.Chunks, ChunkText{ID: cid, Text: text})
		}
	}
	return out, nil
}

func (d *documentUC) Delete(ctx context.Context, userID, id string) error {
	doc, err := d.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	err = d.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := d.jobs.RemoveDocument(ctx, tx, id); err != nil {
			return err
		}
		return d.docs.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	for _, j := range d.state.JobsByUser(userID) {
		if !j.HasDocument(id) {
			continue
		}
		_, _ = d.state.UpdateJob(j.ID, func(j *model.Job) error {
			j.Documents = without(j.Documents, id)
			return nil
		})
	}
	d.removeVectors(ctx, doc)
	return nil
}

func (d *documentUC) removeVectors(ctx context.Context, doc *model.Document) {
	err := d.vectors.DeletePoints(context.WithoutCancel(ctx), doc.CollectionName, adapter.MatchAny{Key: "documentId", Values: []string{doc.ID}})
	if err != nil {
		d.log.Warn().Err(err).Str("document_id", doc.ID).Msg("delete document vectors failed")
	}
}

func (d *documentUC) Attach(ctx context.Context, userID, documentID, jobID string) (*model.Job, error) {
	return d.updateJobDocuments(ctx, userID, documentID, jobID, func(ids []string) []string {
		for _, id := range ids {
			if id == documentID {
				return ids
			}
		}
		return append(ids, documentID)
	})
}

func (d *documentUC) Detach(ctx context.Context, userID, documentID, jobID string) (*model.Job, error) {
	return d.updateJobDocuments(ctx, userID, documentID, jobID, func(ids []string) []string {
		return without(ids, documentID)
	})
}

func (d *documentUC) updateJobDocuments(ctx context.Context, userID, documentID, jobID string, fn func([]string) []string) (*model.Job, error) {
	job, err := loadOwnedJob(ctx, d.state, d.jobs, userID, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := d.owned(ctx, userID, documentID); err != nil {
		return nil, err
	}
	now := model.Now()
	job.Documents = fn(job.Documents)
	job.UpdatedAt = now
	if err := d.jobs.SetDocuments(ctx, repository.NoTX, job.ID, job.Documents, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	_, _ = d.state.UpdateJob(job.ID, func(j *model.Job) error {
		j.Documents = append([]string(nil), job.Documents...)
		j.UpdatedAt = now
		return nil
	})
	return job, nil
}

func (d *documentUC) ListForJob(ctx context.Context, userID, jobID string) ([]*model.Document, error) {
	job, err := loadOwnedJob(ctx, d.state, d.jobs, userID, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Documents) == 0 {
		return []*model.Document{}, nil
	}
	docs, err := d.docs.ListByIDs(ctx, repository.NoTX, job.Documents)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	return out, nil
}

// detectType trusts a known content type and otherwise goes by extension.
func detectType(fileName, contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case mimePlain, mimeMarkdown, mimeHTML, mimePDF:
		return ct, nil
	case "text/x-markdown":
		return mimeMarkdown, nil
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".text":
		return mimePlain, nil
	case ".md", ".markdown":
		return mimeMarkdown, nil
	case ".html", ".htm":
		return mimeHTML, nil
	case ".pdf":
		return mimePDF, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, fileName)
}

// extractText turns an upload into indexable text and, for HTML, its title.
func (d *documentUC) extractText(mime string, content []byte) (text, title string, err error) {
	if mime == mimePDF {
		text, err = pdfText(content)
		return text, "", err
	}
	if !utf8.Valid(content) {
		return "", "", fmt.Errorf("%w: content is not utf-8 text", domain.ErrUnsupportedFileType)
	}
	text = string(content)
	if mime == mimeHTML {
		title = htmlTitle(text)
		if text, err = d.html.ConvertString(text); err != nil {
			return "", "", fmt.Errorf("convert html: %w", err)
		}
	}
	return text, title, nil
}

func htmlTitle(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
