package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/model/chat"
	"github.com/harborchat/companion/internal/model/persona"
)

// CompletionProvider is the capability interface the orchestrator depends on.
// ProxyClient is the single concrete implementation today.
type CompletionProvider interface {
	GenerateResponse(ctx context.Context, p persona.Persona, history []chat.Message, userMessage, emotionContext string) (string, error)
}

const completionPath = "/api/chat"

// completionRequest is the structured request envelope. Prompt construction is
// delegated server-side; the pre-built prompt string is included for proxy
// variants that forward it verbatim.
type completionRequest struct {
	Prompt              string           `json:"prompt,omitempty"`
	Persona             personaPayload   `json:"persona"`
	ConversationHistory []messagePayload `json:"conversationHistory"`
	UserMessage         string           `json:"userMessage"`
	EmotionContext      string           `json:"emotionContext,omitempty"`
}

type personaPayload struct {
	Name           string   `json:"name"`
	Relationship   string   `json:"relationship"`
	Personality    []string `json:"personality"`
	FavoriteTopics []string `json:"favoriteTopics,omitempty"`
	SpeechStyle    string   `json:"speechStyle"`
}

type messagePayload struct {
	Content  string `json:"content"`
	FromUser bool   `json:"isFromUser"`
}

// completionEnvelope is the canonical response shape. A 200 with success=false
// signals a logical failure carried in Error.
type completionEnvelope struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProxyClient talks to the remote completion proxy. It performs exactly one
// attempt per call; retry policy belongs to the orchestrator.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewProxyClient builds a client for the configured proxy base URL.
func NewProxyClient(baseURL string, timeout time.Duration, log *zap.Logger) *ProxyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProxyClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GenerateResponse sends one completion request and maps the outcome onto the
// error taxonomy.
func (c *ProxyClient) GenerateResponse(ctx context.Context, p persona.Persona, history []chat.Message, userMessage, emotionContext string) (string, error) {
	if c.baseURL == "" {
		return "", newError(KindConfiguration, 0, fmt.Errorf("proxy base URL not configured"))
	}

	startIdx := 0
	if len(history) > HistoryLimit {
		startIdx = len(history) - HistoryLimit
	}
	payloadHistory := make([]messagePayload, 0, len(history)-startIdx)
	for _, msg := range history[startIdx:] {
		payloadHistory = append(payloadHistory, messagePayload{Content: msg.Content, FromUser: msg.FromUser})
	}

	reqBody := completionRequest{
		Prompt: BuildPrompt(p, history, userMessage, emotionContext),
		Persona: personaPayload{
			Name:           p.Name,
			Relationship:   p.Relationship,
			Personality:    p.Personality,
			FavoriteTopics: p.FavoriteTopics,
			SpeechStyle:    p.SpeechStyle,
		},
		ConversationHistory: payloadHistory,
		UserMessage:         userMessage,
		EmotionContext:      emotionContext,
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(KindUnknown, 0, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionPath, bytes.NewReader(raw))
	if err != nil {
		return "", newError(KindConfiguration, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newError(KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var envelope completionEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return "", newError(KindInvalidResponse, resp.StatusCode, err)
		}
		if !envelope.Success {
			return "", newError(KindAPI, resp.StatusCode, fmt.Errorf("proxy reported failure: %s", envelope.Error))
		}
		c.log.Debug("completion received",
			zap.String("model", envelope.Model),
			zap.Int("length", len(envelope.Response)))
		return envelope.Response, nil
	case http.StatusBadRequest:
		return "", newError(KindAPI, resp.StatusCode, fmt.Errorf("bad request"))
	case http.StatusUnauthorized:
		return "", newError(KindConfiguration, resp.StatusCode, fmt.Errorf("unauthorized: check proxy credentials"))
	case http.StatusTooManyRequests:
		return "", newError(KindRateLimit, resp.StatusCode, fmt.Errorf("rate limit exceeded"))
	default:
		return "", newError(KindServer, resp.StatusCode, fmt.Errorf("server error"))
	}
}

// TestConnection issues one synthetic request and reports whether a non-empty
// completion came back.
func (c *ProxyClient) TestConnection(ctx context.Context) bool {
	probe := persona.Persona{
		Name:         "Test",
		Relationship: "Friend",
		Personality:  []string{"friendly"},
		SpeechStyle:  "plain",
	}

	response, err := c.GenerateResponse(ctx, probe, nil, "ping", "")
	if err != nil {
		c.log.Warn("proxy connection test failed", zap.Error(err))
		return false
	}
	return response != ""
}
