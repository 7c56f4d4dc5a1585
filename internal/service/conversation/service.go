// Package conversation is the decision layer between the remote completion
// path and the local responder. It owns session state, turn ordering, and the
// single-in-flight-send guarantee.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/blobstore"
	"github.com/harborchat/companion/internal/entitlement"
	"github.com/harborchat/companion/internal/learning"
	"github.com/harborchat/companion/internal/lexicon"
	"github.com/harborchat/companion/internal/model/chat"
	"github.com/harborchat/companion/internal/model/persona"
	"github.com/harborchat/companion/internal/responder"
)

// SendState tracks where a send currently sits, for logging and diagnostics.
type SendState string

const (
	StateIdle          SendState = "idle"
	StateGating        SendState = "gating"
	StateRemoteAttempt SendState = "remote_attempt"
	StateLocalFallback SendState = "local_fallback"
	StateDelivering    SendState = "delivering"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// Config carries the orchestrator's policy switches.
type Config struct {
	// AIEnabled gates the remote path entirely; when false every send goes
	// through the local composer.
	AIEnabled bool
	// LocalFallbackForUnentitled routes un-entitled users to the local
	// composer instead of the subscription prompt. Off by default: the local
	// path is a degraded-quality mode, not a paywall bypass.
	LocalFallbackForUnentitled bool
	// TypingLead/TypingTrail pace the typing indicator around generation.
	// Purely cosmetic; zero in tests.
	TypingLead  time.Duration
	TypingTrail time.Duration
}

// Service orchestrates sends for all sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*session

	personas persona.Store
	provider responder.CompletionProvider
	composer *responder.LocalComposer
	gate     entitlement.Gate
	learned  *learning.Store
	blobs    blobstore.Store
	emotions *lexicon.EmotionLexicon
	cfg      Config
	log      *zap.Logger
}

type session struct {
	id        string
	personaID string

	mu       sync.Mutex
	messages []chat.Message
	cancel   context.CancelFunc
	sendSeq  uint64
	subs     map[int]func(bool)
	nextSub  int

	// typing counts overlapping sends so the indicator survives a send being
	// replaced mid-flight.
	typing *uatomic.Int32
	state  *uatomic.String
}

// NewService wires the orchestrator. provider may be nil when AI is disabled.
func NewService(personas persona.Store, provider responder.CompletionProvider, composer *responder.LocalComposer, gate entitlement.Gate, learned *learning.Store, blobs blobstore.Store, emotions *lexicon.EmotionLexicon, cfg Config, log *zap.Logger) *Service {
	return &Service{
		sessions: make(map[string]*session),
		personas: personas,
		provider: provider,
		composer: composer,
		gate:     gate,
		learned:  learned,
		blobs:    blobs,
		emotions: emotions,
		cfg:      cfg,
		log:      log,
	}
}

func messagesKey(personaID string) string {
	return "chat_messages_" + personaID
}

// CreateSession provisions a session bound to a persona and loads its
// persisted transcript.
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		return chat.Session{}, ErrPersonaRequired
	}
	if _, ok := s.personas.FindByID(personaID); !ok {
		return chat.Session{}, ErrPersonaNotFound
	}

	messages, err := s.loadMessages(ctx, personaID)
	if err != nil {
		s.log.Warn("starting session with empty history", zap.String("persona", personaID), zap.Error(err))
		messages = nil
	}

	sess := &session{
		id:        uuid.NewString(),
		personaID: personaID,
		messages:  chat.Trim(messages),
		subs:      make(map[int]func(bool)),
		typing:    uatomic.NewInt32(0),
		state:     uatomic.NewString(string(StateIdle)),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return chat.Session{ID: sess.id, PersonaID: personaID, CreatedAt: time.Now().UTC()}, nil
}

// Transcript returns a copy of the session's in-memory history.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Message, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]chat.Message(nil), sess.messages...), nil
}

// SendState reports the session's current position in the send state machine.
func (s *Service) SendState(sessionID string) (SendState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateIdle, err
	}
	return SendState(sess.state.Load()), nil
}

// Typing reports whether the typing indicator is currently visible.
func (s *Service) Typing(sessionID string) (bool, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	return sess.typing.Load() > 0, nil
}

// SubscribeTyping registers a callback for typing indicator changes. The
// returned function unsubscribes.
func (s *Service) SubscribeTyping(sessionID string, fn func(bool)) (func(), error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	id := sess.nextSub
	sess.nextSub++
	sess.subs[id] = fn
	sess.mu.Unlock()

	return func() {
		sess.mu.Lock()
		delete(sess.subs, id)
		sess.mu.Unlock()
	}, nil
}

// SendMessage appends the user's turn, generates a reply via the remote or
// local path, appends the bot turn, and returns it. A concurrent send on the
// same session cancels the one in flight.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	p, ok := s.personas.FindByID(sess.personaID)
	if !ok {
		return chat.Message{}, ErrPersonaNotFound
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The user's turn lands in history synchronously, before any suspension,
	// so callers see their input immediately regardless of remote latency.
	sess.mu.Lock()
	if sess.cancel != nil {
		sess.cancel()
	}
	sess.cancel = cancel
	sess.sendSeq++
	seq := sess.sendSeq

	userMsg := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sess.id,
		Content:   text,
		FromUser:  true,
		CreatedAt: time.Now().UTC(),
	}
	sess.messages = append(sess.messages, userMsg)
	history := append([]chat.Message(nil), sess.messages[:len(sess.messages)-1]...)
	sess.mu.Unlock()

	s.setTyping(sess, true)
	defer s.setTyping(sess, false)
	defer sess.state.Store(string(StateIdle))

	if err := sleepCtx(sendCtx, s.cfg.TypingLead); err != nil {
		return chat.Message{}, err
	}

	reply, err := s.generate(sendCtx, sess, p, history, text)
	if err != nil {
		return chat.Message{}, err
	}

	if err := sleepCtx(sendCtx, s.cfg.TypingTrail); err != nil {
		return chat.Message{}, err
	}

	sess.state.Store(string(StateDelivering))

	botMsg := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sess.id,
		Content:   reply.Text,
		FromUser:  false,
		CreatedAt: time.Now().UTC(),
	}.WithEmotion(reply.Emotion, reply.Trigger)

	// The bot turn is appended once, atomically, after resolution. A cancelled
	// send must never get this far with a stale context.
	sess.mu.Lock()
	if sendCtx.Err() != nil {
		sess.mu.Unlock()
		return chat.Message{}, sendCtx.Err()
	}
	sess.messages = chat.Trim(append(sess.messages, botMsg))
	if sess.sendSeq == seq {
		sess.cancel = nil
	}
	sess.mu.Unlock()

	// Persistence is off the critical path; failures are a log-level concern.
	go s.persist(sess)

	return botMsg, nil
}

// generate picks the remote or local path per the gating rules and always
// resolves into a deliverable reply, except on cancellation.
func (s *Service) generate(ctx context.Context, sess *session, p persona.Persona, history []chat.Message, text string) (responder.Reply, error) {
	sess.state.Store(string(StateGating))

	emotionContext := ""
	emotionTrigger := ""
	if trigger, ok := s.emotions.FindTrigger(text); ok {
		emotionContext = trigger.Emotion
		if keyword, matched := trigger.MatchedKeyword(text); matched {
			emotionTrigger = keyword
		}
	}

	if !s.cfg.AIEnabled {
		s.log.Debug("ai disabled, composing locally")
		sess.state.Store(string(StateLocalFallback))
		return s.composer.Compose(ctx, p, history, text), nil
	}

	if !s.gate.CanUseAI() {
		if s.cfg.LocalFallbackForUnentitled {
			s.log.Debug("entitlement denied, composing locally")
			sess.state.Store(string(StateLocalFallback))
			return s.composer.Compose(ctx, p, history, text), nil
		}
		return responder.Reply{Text: subscriptionMessage(s.gate.TrialDaysLeft())}, nil
	}

	sess.state.Store(string(StateRemoteAttempt))
	content, err := s.provider.GenerateResponse(ctx, p, history, text, emotionContext)
	if err != nil {
		if ctx.Err() != nil {
			return responder.Reply{}, ctx.Err()
		}
		s.log.Warn("remote completion failed",
			zap.String("kind", string(responder.KindOf(err))),
			zap.Error(err))
		// Every failure still resolves into a user-visible bot turn so the
		// conversation never loses the user's message without an answer.
		return responder.Reply{Text: userFacingMessage(err)}, nil
	}

	return responder.Reply{Text: content, Emotion: emotionContext, Trigger: emotionTrigger}, nil
}

func subscriptionMessage(trialDaysLeft int) string {
	if trialDaysLeft > 0 {
		return fmt.Sprintf("AI conversations need an active subscription. You have %d trial days left, and you can enable them in settings.", trialDaysLeft)
	}
	return "AI conversations need an active subscription. Your trial has ended, but I'm still here once you subscribe."
}

// userFacingMessage converts a completion failure into the message delivered
// as the bot's turn.
func userFacingMessage(err error) string {
	var typed *responder.Error
	code := 0
	if errors.As(err, &typed) {
		code = typed.Code
	}

	switch responder.KindOf(err) {
	case responder.KindConfiguration:
		return "There's a configuration problem with the AI service. Please check the app settings."
	case responder.KindNetwork:
		return "I couldn't reach the server. Check your connection and send that again."
	case responder.KindRateLimit:
		return "I'm a little overwhelmed right now. Give me a moment and try again later."
	case responder.KindServer, responder.KindInvalidResponse:
		if code > 0 {
			return fmt.Sprintf("The server ran into a problem (code %d). Please try again in a bit.", code)
		}
		return "The server ran into a problem. Please try again in a bit."
	case responder.KindAPI:
		return "The AI service couldn't handle that request. Mind rephrasing it?"
	default:
		return "Something went wrong on my end. Let's try that again."
	}
}

// Conversations implements learning.ConversationSource for the relearn job.
func (s *Service) Conversations(_ context.Context) map[string][]chat.Message {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	byPersona := make(map[string][]chat.Message)
	for _, sess := range sessions {
		sess.mu.Lock()
		byPersona[sess.personaID] = append(byPersona[sess.personaID], sess.messages...)
		sess.mu.Unlock()
	}
	return byPersona
}

// DeletePersonaData cascades a persona deletion: drops its sessions and
// removes its transcript and learned phrases.
func (s *Service) DeletePersonaData(ctx context.Context, personaID string) error {
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.personaID == personaID {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	if err := s.blobs.Remove(ctx, messagesKey(personaID)); err != nil {
		return fmt.Errorf("remove transcript: %w", err)
	}
	if s.learned != nil {
		if err := s.learned.Clear(ctx, personaID); err != nil {
			return fmt.Errorf("clear learned phrases: %w", err)
		}
	}
	return nil
}

func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) loadMessages(ctx context.Context, personaID string) ([]chat.Message, error) {
	raw, ok, err := s.blobs.Get(ctx, messagesKey(personaID))
	if err != nil || !ok {
		return nil, err
	}
	var messages []chat.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return messages, nil
}

func (s *Service) persist(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess.mu.Lock()
	snapshot := append([]chat.Message(nil), sess.messages...)
	sess.mu.Unlock()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Warn("encode transcript failed", zap.String("persona", sess.personaID), zap.Error(err))
		return
	}
	if err := s.blobs.Set(ctx, messagesKey(sess.personaID), raw); err != nil {
		s.log.Warn("persist transcript failed", zap.String("persona", sess.personaID), zap.Error(err))
	}
}

func (s *Service) setTyping(sess *session, typing bool) {
	if typing {
		if sess.typing.Inc() != 1 {
			return
		}
	} else {
		if sess.typing.Dec() != 0 {
			return
		}
	}
	sess.mu.Lock()
	subs := make([]func(bool), 0, len(sess.subs))
	for _, fn := range sess.subs {
		subs = append(subs, fn)
	}
	sess.mu.Unlock()
	for _, fn := range subs {
		fn(typing)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
