// Package api exposes the agent over HTTP: a chat endpoint, a
// conversation reset, health, and Prometheus metrics. The caller's
// identity arrives in the X-User-ID header; every pipeline call is
// scoped to it.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fintrack/internal/logging"
	"fintrack/internal/types"
)

const maxChatBody = 64 << 10

// Agent is the slice of the pipeline the handler needs.
type Agent interface {
	Handle(ctx context.Context, message string, userID int64) types.ChatResponse
	Reset(ctx context.Context, userID int64) types.ChatResponse
}

// Dependencies carries what the handler is built from.
type Dependencies struct {
	Agent  Agent
	Logger *zap.Logger
}

// Handler serves the agent API.
type Handler struct {
	agent Agent
	log   *zap.Logger
	mux   *http.ServeMux
}

// NewHandler builds the routed handler.
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		agent: deps.Agent,
		log:   logging.OrNop(deps.Logger),
		mux:   http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /agent/chat", h.requireUser(h.handleChat))
	h.mux.HandleFunc("POST /agent/chat/reset", h.requireUser(h.handleReset))
	h.mux.HandleFunc("GET /v1/health", h.handleHealth)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// requireUser resolves the authenticated user from X-User-ID. There is no
// token exchange here; identity is asserted by the fronting proxy.
func (h *Handler) requireUser(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			h.writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
			return
		}
		next(w, r, userID)
	}
}

type chatRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, userID int64) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "content must not be empty")
		return
	}
	resp := h.agent.Handle(r.Context(), req.Content, userID)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, userID int64) {
	resp := h.agent.Reset(r.Context(), userID)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, types.ChatResponse{
		Response: msg,
		Success:  false,
		Error:    msg,
	})
}
