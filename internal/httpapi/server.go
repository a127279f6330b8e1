// Package httpapi exposes health, metrics and operator endpoints for stored
// chats over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/logger"
)

// Agent is the part of agent.Agent the API serves.
type Agent interface {
	Summarize(ctx context.Context, chatID int64, count int) (string, error)
	Recent(ctx context.Context, chatID int64, limit int) ([]history.Message, error)
	DefaultCount() int
	Forget(ctx context.Context, chatID int64) error
}

type Server struct {
	agent   Agent
	metrics http.Handler
}

// New creates the API. metrics may be nil, in which case /metrics is 404.
func New(a Agent, metrics http.Handler) *Server {
	return &Server{agent: a, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/v1/chats/{chatID}/history", s.handleHistory)
	r.Delete("/v1/chats/{chatID}/history", s.handleForget)
	r.Post("/v1/chats/{chatID}/summary", s.handleSummary)

	return r
}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.L.Debug("http request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type messageView struct {
	Seq    int64  `json:"seq"`
	UserID int64  `json:"user_id"`
	Sender string `json:"username"`
	Text   string `json:"message_text"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.agent.Recent(r.Context(), chatID, limit)
	if err != nil {
		logger.L.Error("history read failed", "chat_id", chatID, "error", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{Seq: m.Seq, UserID: m.SenderID, Sender: m.SenderName, Text: m.Text})
	}
	respondJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": out})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if err := s.agent.Forget(r.Context(), chatID); err != nil {
		logger.L.Error("history delete failed", "chat_id", chatID, "error", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// summaryRequest leaves Count nil when the caller omitted it.
type summaryRequest struct {
	Count *int `json:"count"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	count := s.agent.DefaultCount()
	if req.Count != nil {
		count = *req.Count
	}

	summary, err := s.agent.Summarize(r.Context(), chatID, count)
	if errors.Is(err, agent.ErrInvalidCount) {
		respondError(w, http.StatusBadRequest, "invalid_count", err.Error())
		return
	}
	if err != nil {
		logger.L.Error("summary failed", "chat_id", chatID, "error", err)
		respondError(w, http.StatusInternalServerError, "summary_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "count": count, "summary": summary})
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "chat id must be an integer")
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
