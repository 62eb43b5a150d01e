package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tejas.dev/portfolio-api/internal/core"
	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
	"tejas.dev/portfolio-api/internal/store"
)

// DegradedReply is sent instead of an error when an upstream model is
// unavailable, so the chat widget always has something to show.
const DegradedReply = "I'm at capacity right now. Please try again in a moment."

// ChatService answers chat messages.
type ChatService interface {
	Chat(ctx context.Context, in core.ChatInput) (*core.ChatResult, error)
	History(sessionID string) []domain.Turn
}

// IndexService rebuilds and describes the retrieval index.
type IndexService interface {
	Reindex(ctx context.Context) (*core.ReindexResult, error)
	Sources(ctx context.Context) (*core.SourcesReport, error)
	IndexedChunks() int
}

// Analytics reads the chat analytics log.
type Analytics interface {
	ListSessions(since time.Time, limit int) ([]store.Session, error)
	GetSession(sessionID string) (*store.Session, error)
	GetMessages(sessionID string, limit int) ([]store.Message, error)
}

type APIHandler struct {
	chat       ChatService
	index      IndexService
	sessions   Analytics
	resumePath string
}

// NewAPIHandler wires the HTTP handlers. sessions may be nil.
func NewAPIHandler(chat ChatService, index IndexService, sessions Analytics, resumePath string) *APIHandler {
	return &APIHandler{chat: chat, index: index, sessions: sessions, resumePath: resumePath}
}

type HealthResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	IndexedChunks int    `json:"indexed_chunks"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Message:       "Portfolio API is running",
		IndexedChunks: h.index.IndexedChunks(),
	})
}

type ChatRequest struct {
	Message   string             `json:"message"`
	SessionID string             `json:"session_id"`
	Metadata  *core.ChatMetadata `json:"metadata,omitempty"`
}

type ChatResponse struct {
	Response    string    `json:"response"`
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Sources     []string  `json:"sources"`
	MissingInfo bool      `json:"missing_info,omitempty"`
	Followups   []string  `json:"followups,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithBadRequest(w, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondWithBadRequest(w, "Message cannot be empty", nil)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := h.chat.Chat(r.Context(), core.ChatInput{
		Message:   req.Message,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrCompletionService) || errors.Is(err, domain.ErrEmbeddingService) {
			logger.Warn("Answering chat in degraded mode", "session_id", req.SessionID, "error", err)
			respondJSON(w, http.StatusOK, ChatResponse{
				Response:  DegradedReply,
				SessionID: req.SessionID,
				Timestamp: time.Now().UTC(),
				Sources:   []string{},
				Degraded:  true,
			})
			return
		}
		logger.Error("Error processing chat", "session_id", req.SessionID, "error", err)
		respondWithDomainError(w, err, "Failed to process chat")
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	respondJSON(w, http.StatusOK, ChatResponse{
		Response:    result.Response,
		SessionID:   result.SessionID,
		Timestamp:   result.Timestamp,
		Sources:     sources,
		MissingInfo: result.MissingInfo,
		Followups:   result.Followups,
	})
}

type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []domain.Turn `json:"messages"`
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	respondJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Messages:  h.chat.History(sessionID),
	})
}

type ReindexResponse struct {
	Chunks    int       `json:"chunks"`
	Files     int       `json:"files"`
	Skipped   []string  `json:"skipped"`
	ElapsedMS int64     `json:"elapsed_ms"`
	BuiltAt   time.Time `json:"built_at"`
}

func (h *APIHandler) ReindexHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.index.Reindex(r.Context())
	if err != nil {
		logger.Error("Error reindexing", "error", err)
		respondWithDomainError(w, err, "Failed to rebuild index")
		return
	}

	skipped := result.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	respondJSON(w, http.StatusOK, ReindexResponse{
		Chunks:    result.Chunks,
		Files:     result.Files,
		Skipped:   skipped,
		ElapsedMS: result.Elapsed.Milliseconds(),
		BuiltAt:   result.BuiltAt,
	})
}

func (h *APIHandler) SourcesHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.index.Sources(r.Context())
	if err != nil {
		logger.Error("Error listing sources", "error", err)
		respondWithDomainError(w, err, "Failed to list sources")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *APIHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.resumePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondWithNotFound(w, "Resume not available")
			return
		}
		logger.Error("Error opening resume", "path", h.resumePath, "error", err)
		respondWithInternalError(w, "Failed to read resume")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondWithNotFound(w, "Resume not available")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(h.resumePath)+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type SessionsResponse struct {
	Since    time.Time       `json:"since"`
	Sessions []store.Session `json:"sessions"`
}

// ListSessionsHandler reads the analytics log. Query params: days (default 7)
// and limit (default 100).
func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondWithNotFound(w, "Analytics are not enabled")
		return
	}

	days, err := queryInt(r, "days", 7)
	if err != nil || days <= 0 {
		respondWithBadRequest(w, "days must be a positive integer", nil)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		respondWithBadRequest(w, "limit must be a positive integer", nil)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	sessions, err := h.sessions.ListSessions(since, limit)
	if err != nil {
		logger.Error("Error listing sessions", "error", err)
		respondWithInternalError(w, "Failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, SessionsResponse{Since: since, Sessions: sessions})
}

type SessionDetailResponse struct {
	Session  *store.Session  `json:"session"`
	Messages []store.Message `json:"messages"`
}

// GetSessionHandler returns one logged session with its messages. Query
// param: limit (default all).
func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondWithNotFound(w, "Analytics are not enabled")
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		respondWithBadRequest(w, "limit must be a non-negative integer", nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.sessions.GetSession(sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		respondWithNotFound(w, "Session not found")
		return
	}
	if err != nil {
		logger.Error("Error getting session", "session_id", sessionID, "error", err)
		respondWithInternalError(w, "Failed to get session")
		return
	}

	messages, err := h.sessions.GetMessages(sessionID, limit)
	if err != nil {
		logger.Error("Error getting session messages", "session_id", sessionID, "error", err)
		respondWithInternalError(w, "Failed to get session messages")
		return
	}
	respondJSON(w, http.StatusOK, SessionDetailResponse{Session: sess, Messages: messages})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
