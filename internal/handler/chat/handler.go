package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborchat/companion/internal/service/conversation"
	"github.com/harborchat/companion/pkg/utils"
)

// ConnectionTester probes whether the remote completion service is reachable.
type ConnectionTester interface {
	TestConnection(ctx context.Context) bool
}

// Handler exposes the conversation service over HTTP.
type Handler struct {
	conv   *conversation.Service
	tester ConnectionTester
}

// New creates the chat handler. tester may be nil when AI is disabled.
func New(conv *conversation.Service, tester ConnectionTester) *Handler {
	return &Handler{conv: conv, tester: tester}
}

// RegisterRoutes mounts chat routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/messages", h.handleSendMessage)
	r.Get("/messages/{sessionID}", h.handleTranscript)
	r.Get("/ai/health", h.handleAIHealth)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.conv.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrPersonaRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, conversation.ErrPersonaNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		default:
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Content   string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.conv.SendMessage(r.Context(), payload.SessionID, payload.Content)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, conversation.ErrSessionNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, context.Canceled):
			// A newer send on the same session replaced this one.
			utils.RespondError(w, http.StatusConflict, "send superseded by a newer message")
		default:
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.conv.Transcript(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	if h.tester == nil {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"available": false, "reason": "ai disabled"})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"available": h.tester.TestConnection(r.Context())})
}
