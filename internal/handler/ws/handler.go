// Package ws streams a conversation over a WebSocket: inbound user messages,
// outbound bot replies and typing indicator events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/service/conversation"
	"github.com/harborchat/companion/pkg/utils"
)

// Handler upgrades chat sessions to a WebSocket stream.
type Handler struct {
	conv     *conversation.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(conv *conversation.Service, log *zap.Logger) *Handler {
	return &Handler{
		conv: conv,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the stream route on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleSocket)
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type messagePayload struct {
	Text string `json:"text"`
}

type outgoingEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newEvent(kind, sessionID string, data interface{}) outgoingEvent {
	return outgoingEvent{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.conv.Transcript(r.Context(), sessionID); err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	out := make(chan outgoingEvent, 16)
	done := make(chan struct{})
	var closeOnce sync.Once
	shutdown := func() { closeOnce.Do(func() { close(done) }) }

	// push never blocks past connection teardown.
	push := func(ev outgoingEvent) {
		select {
		case out <- ev:
		case <-done:
		}
	}

	unsubscribe, err := h.conv.SubscribeTyping(sessionID, func(typing bool) {
		push(newEvent("typing", sessionID, map[string]bool{"typing": typing}))
	})
	if err != nil {
		h.log.Warn("typing subscription failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	defer unsubscribe()

	go func() {
		for {
			select {
			case ev := <-out:
				if err := conn.WriteJSON(ev); err != nil {
					shutdown()
					return
				}
			case <-done:
				return
			}
		}
	}()

	push(newEvent("status", sessionID, map[string]string{"message": "stream established"}))

	var sendWG sync.WaitGroup
	defer sendWG.Wait()
	defer shutdown()

	for {
		var ev inboundEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read ended", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}

		switch ev.Type {
		case "message":
			var payload messagePayload
			if err := json.Unmarshal(ev.Data, &payload); err != nil {
				push(newEvent("error", sessionID, map[string]string{"error": "invalid message payload"}))
				continue
			}
			// Sends run off the read loop so a newer message can replace one
			// still in flight.
			sendWG.Add(1)
			go func() {
				defer sendWG.Done()
				h.deliver(sessionID, payload.Text, push)
			}()
		case "ping":
			push(newEvent("pong", sessionID, nil))
		default:
			push(newEvent("error", sessionID, map[string]string{"error": "unknown event type"}))
		}
	}
}

func (h *Handler) deliver(sessionID, text string, push func(outgoingEvent)) {
	reply, err := h.conv.SendMessage(context.Background(), sessionID, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Replaced by a newer send; the newer one will deliver.
			return
		}
		push(newEvent("error", sessionID, map[string]string{"error": err.Error()}))
		return
	}
	push(newEvent("message", sessionID, reply))
}
