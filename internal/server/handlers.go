package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/models"
	"github.com/hyperjump/grain/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(s.config.Retrieval.DefaultK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("query", query.Query),
		zap.Int("k", query.K),
		zap.String("data_source", string(query.DataSource)))

	res, err := s.manager.RetrieveQuery(r.Context(), query)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	results := res.Chunks
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Query:     query.Query,
		Results:   results,
		Total:     len(results),
		Threshold: s.manager.Threshold(),
		Fallback:  res.Fallback,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		s.respondError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := models.ParseDataSource(string(req.DataSource)); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.assistant.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondFailure(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	SessionID string   `json:"session_id"`
	History   []string `json:"history"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		s.respondError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	id := chi.URLParam(r, "id")
	sess, ok := s.assistant.Sessions().Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, historyResponse{SessionID: id, History: sess.History()})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		s.respondError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	id := chi.URLParam(r, "id")
	sess, ok := s.assistant.Sessions().Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	sess.Clear()
	s.logger.Debug("session history cleared", zap.String("session_id", id))
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "cleared"})
}

type thresholdBody struct {
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	v := s.manager.Threshold()
	s.respondJSON(w, http.StatusOK, thresholdBody{Threshold: &v})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var body thresholdBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Threshold == nil {
		s.respondError(w, http.StatusBadRequest, "threshold is required")
		return
	}
	if err := s.manager.SetThreshold(*body.Threshold); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("relevance threshold changed", zap.Float64("threshold", *body.Threshold))
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := s.manager.CorpusName()
	loaded, err := s.manager.Load(r.Context(), name)
	if err != nil {
		s.respondFailure(w, "reload failed", err)
		return
	}
	if !loaded {
		s.respondError(w, http.StatusNotFound, "no snapshot found for "+name)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"corpus": name,
		"chunks": s.manager.Size(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"corpus": s.manager.Stats(),
	}
	if s.assistant != nil {
		resp["sessions"] = s.assistant.Sessions().Len()
	}
	indexPath, chunksPath := s.manager.Paths(s.manager.CorpusName())
	if diskBytes, err := storage.DiskUsageBytes(indexPath, chunksPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"vector_index_type":    s.config.Vector.IndexType,
		"embeddings_dir":       s.manager.Dir(),
		"default_k":            s.config.Retrieval.DefaultK,
		"generation_model":     s.config.Generation.Model,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"corpus_loaded": s.manager.Loaded(),
	})
}

// respondFailure maps domain errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, index.ErrNoIndex):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, index.ErrSnapshotMismatch), errors.Is(err, index.ErrEmbedderMismatch):
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
