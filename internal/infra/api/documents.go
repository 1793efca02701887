package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/usecase"
)

const (
	defaultUploadBytes = 10 << 20
	multipartMemory    = 32 << 20
	multipartOverhead  = 1 << 20
)

type uploadResponse struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	DocumentID string   `json:"documentId"`
	Chunks     int      `json:"chunks"`
	ChunkIDs   []string `json:"chunkIds"`
}

func (s *Server) maxUpload() int64 {
	if s.cfg.Upload.MaxBytes > 0 {
		return s.cfg.Upload.MaxBytes
	}
	return defaultUploadBytes
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, s.log, domain.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No file uploaded"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No file uploaded"})
		return
	}
	defer f.Close()
	if hdr.Size > limit {
		writeError(w, r, s.log, domain.ErrFileTooLarge)
		return
	}
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		writeError(w, r, s.log, fmt.Errorf("read upload: %w", err))
		return
	}

	doc, err := s.docs.Upload(ctx, logging.UserID(ctx), usecase.UploadInput{
		FileName: hdr.Filename,
		MimeType: hdr.Header.Get("Content-Type"),
		Content:  content,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		Message:    "Document processed and stored successfully",
		DocumentID: doc.ID,
		Chunks:     doc.TotalChunks,
		ChunkIDs:   doc.ChunkIDs,
	})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeDocuments(w, docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	doc, err := s.docs.Get(r.Context(), logging.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) documentChunks(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	chunks, err := s.docs.Chunks(r.Context(), logging.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.docs.Delete(r.Context(), logging.UserID(r.Context()), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{Success: true, Message: "Document deleted successfully"})
}

func (s *Server) attachDocument(w http.ResponseWriter, r *http.Request) {
	s.linkDocument(w, r, s.docs.Attach, "Document attached to job successfully")
}

func (s *Server) detachDocument(w http.ResponseWriter, r *http.Request) {
	s.linkDocument(w, r, s.docs.Detach, "Document detached from job successfully")
}

type linkFunc func(ctx context.Context, userID, documentID, jobID string) (*model.Job, error)

func (s *Server) linkDocument(w http.ResponseWriter, r *http.Request, link linkFunc, msg string) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	jobID, err := pathParam(r, "jobId")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	job, err := link(r.Context(), logging.UserID(r.Context()), id, jobID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okBody
		Documents []string `json:"documents"`
	}{okBody{Success: true, Message: msg}, job.Documents})
}

func (s *Server) jobDocuments(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathParam(r, "jobId")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	docs, err := s.docs.ListForJob(r.Context(), logging.UserID(r.Context()), jobID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeDocuments(w, docs)
}

func writeDocuments(w http.ResponseWriter, docs []*model.Document) {
	if docs == nil {
		docs = []*model.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}
