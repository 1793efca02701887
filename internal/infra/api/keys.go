package api

import (
	"net/http"
	"strings"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/usecase"
)

type saveKeyRequest struct {
	Key string `json:"key"`
}

type savedKeyResponse struct {
	Success bool `json:"success"`
	usecase.KeyStatus
}

func (s *Server) provider(w http.ResponseWriter, r *http.Request) (model.Provider, bool) {
	raw, err := pathParam(r, "provider")
	if err == nil {
		var p model.Provider
		if p, err = model.ParseProvider(raw); err == nil {
			return p, true
		}
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: `Invalid provider. Must be "openrouter" or "tavily"`})
	return "", false
}

func (s *Server) keyStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(w, r)
	if !ok {
		return
	}
	st, err := s.users.KeyStatus(r.Context(), logging.UserID(r.Context()), p)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) saveKey(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(w, r)
	if !ok {
		return
	}
	var req saveKeyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Key is required"})
		return
	}
	st, err := s.users.SaveKey(r.Context(), logging.UserID(r.Context()), p, req.Key)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, savedKeyResponse{Success: true, KeyStatus: *st})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(w, r)
	if !ok {
		return
	}
	if err := s.users.DeleteKey(r.Context(), logging.UserID(r.Context()), p); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{Success: true, Message: "API key deleted"})
}
