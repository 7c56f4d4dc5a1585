package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/blobstore"
	"github.com/harborchat/companion/internal/learning"
	"github.com/harborchat/companion/internal/lexicon"
	"github.com/harborchat/companion/internal/model/chat"
	"github.com/harborchat/companion/internal/model/persona"
	"github.com/harborchat/companion/internal/responder"
)

type stubGate struct {
	allow bool
	days  int
}

func (g stubGate) CanUseAI() bool     { return g.allow }
func (g stubGate) TrialDaysLeft() int { return g.days }

type mockProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, userMessage string) (string, error)
}

func (m *mockProvider) GenerateResponse(ctx context.Context, _ persona.Persona, _ []chat.Message, userMessage, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn == nil {
		return "ok", nil
	}
	return m.fn(ctx, userMessage)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	svc      *Service
	blobs    *blobstore.MemoryStore
	provider *mockProvider
}

func newFixture(t *testing.T, cfg Config, gate stubGate, provider *mockProvider) *fixture {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	learned := learning.NewStore(blobs, learning.ScopePerPersona, zap.NewNop())
	composer := responder.NewLocalComposer(
		lexicon.NewEmotionLexicon(),
		lexicon.NewMemoryLexicon(),
		learned,
		rand.New(rand.NewSource(1)),
	)
	svc := NewService(
		persona.NewMemoryStore(persona.Seed()),
		provider,
		composer,
		gate,
		learned,
		blobs,
		lexicon.NewEmotionLexicon(),
		cfg,
		zap.NewNop(),
	)
	return &fixture{svc: svc, blobs: blobs, provider: provider}
}

func mustSession(t *testing.T, svc *Service, personaID string) chat.Session {
	t.Helper()
	sess, err := svc.CreateSession(context.Background(), personaID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestAIDisabledUsesLocalComposer(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: false}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	reply, err := f.svc.SendMessage(context.Background(), sess.ID, "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if strings.TrimSpace(reply.Content) == "" {
		t.Fatal("expected non-empty local reply")
	}
	if provider.callCount() != 0 {
		t.Fatal("no network call may be attempted when AI is disabled")
	}
}

func TestRemoteSuccessDeliversResponseText(t *testing.T) {
	provider := &mockProvider{fn: func(_ context.Context, _ string) (string, error) {
		return "Hi there!", nil
	}}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	reply, err := f.svc.SendMessage(context.Background(), sess.ID, "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if reply.Content != "Hi there!" {
		t.Fatalf("expected remote text, got %q", reply.Content)
	}

	transcript, err := f.svc.Transcript(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected user+bot turns, got %d", len(transcript))
	}
	if !transcript[0].FromUser || transcript[1].FromUser {
		t.Fatal("turn order corrupted")
	}
	if transcript[1].Content != "Hi there!" {
		t.Fatalf("appended bot content mismatch: %q", transcript[1].Content)
	}
}

func TestExpiredEntitlementSurfacesSubscriptionPrompt(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: false}, provider)
	sess := mustSession(t, f.svc, "mom")

	reply, err := f.svc.SendMessage(context.Background(), sess.ID, "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(reply.Content, "subscription") {
		t.Fatalf("expected subscription prompt, got %q", reply.Content)
	}
	if provider.callCount() != 0 {
		t.Fatal("no network call may be attempted without entitlement")
	}

	transcript, _ := f.svc.Transcript(context.Background(), sess.ID)
	if len(transcript) != 2 {
		t.Fatal("subscription prompt must still land as a bot turn")
	}
}

func TestUnentitledLocalFallbackFlag(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true, LocalFallbackForUnentitled: true}, stubGate{allow: false}, provider)
	sess := mustSession(t, f.svc, "mom")

	reply, err := f.svc.SendMessage(context.Background(), sess.ID, "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if strings.Contains(reply.Content, "subscription") {
		t.Fatalf("flag should route to local composer, got %q", reply.Content)
	}
	if provider.callCount() != 0 {
		t.Fatal("remote path must stay closed for un-entitled users")
	}
}

func TestSingleInFlightSendCancelsPrior(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	provider := &mockProvider{fn: func(ctx context.Context, userMessage string) (string, error) {
		if userMessage == "a" {
			once.Do(func() { close(firstStarted) })
			select {
			case <-ctx.Done():
				return "", &responder.Error{Kind: responder.KindNetwork, Err: ctx.Err()}
			case <-release:
				return "reply-a", nil
			}
		}
		return "reply-b", nil
	}}

	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.SendMessage(context.Background(), sess.ID, "a")
		errA <- err
	}()

	<-firstStarted
	reply, err := f.svc.SendMessage(context.Background(), sess.ID, "b")
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if reply.Content != "reply-b" {
		t.Fatalf("expected reply for b, got %q", reply.Content)
	}

	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first send should be cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first send never resolved")
	}
	close(release)

	transcript, _ := f.svc.Transcript(context.Background(), sess.ID)
	botReplies := 0
	for _, msg := range transcript {
		if !msg.FromUser {
			botReplies++
			if msg.Content != "reply-b" {
				t.Fatalf("unexpected bot reply %q", msg.Content)
			}
		}
	}
	if botReplies != 1 {
		t.Fatalf("expected exactly one bot reply, got %d", botReplies)
	}

	if typing, _ := f.svc.Typing(sess.ID); typing {
		t.Fatal("typing indicator must be cleared after cancellation")
	}
}

func TestRemoteFailureResolvesIntoUserFacingBotTurn(t *testing.T) {
	cases := []struct {
		kind     responder.Kind
		code     int
		fragment string
	}{
		{responder.KindRateLimit, 429, "try again later"},
		{responder.KindNetwork, 0, "connection"},
		{responder.KindConfiguration, 401, "configuration problem"},
		{responder.KindServer, 500, "code 500"},
		{responder.KindAPI, 400, "couldn't handle"},
	}

	for _, tc := range cases {
		provider := &mockProvider{fn: func(_ context.Context, _ string) (string, error) {
			return "", &responder.Error{Kind: tc.kind, Code: tc.code, Err: errors.New("boom")}
		}}
		f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
		sess := mustSession(t, f.svc, "mom")

		reply, err := f.svc.SendMessage(context.Background(), sess.ID, "hello")
		if err != nil {
			t.Fatalf("%s: send must not error, got %v", tc.kind, err)
		}
		if !strings.Contains(reply.Content, tc.fragment) {
			t.Fatalf("%s: expected %q in %q", tc.kind, tc.fragment, reply.Content)
		}

		transcript, _ := f.svc.Transcript(context.Background(), sess.ID)
		if len(transcript) != 2 {
			t.Fatalf("%s: failure must still produce a bot turn", tc.kind)
		}
	}
}

func TestEmotionTaggingOnBotTurnsOnly(t *testing.T) {
	provider := &mockProvider{fn: func(_ context.Context, _ string) (string, error) {
		return "Get some rest.", nil
	}}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	if _, err := f.svc.SendMessage(context.Background(), sess.ID, "I'm so tired today"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	transcript, _ := f.svc.Transcript(context.Background(), sess.ID)
	if transcript[0].Emotion != "" {
		t.Fatal("user turn must not carry emotion fields")
	}
	if transcript[1].Emotion != "tired" {
		t.Fatalf("bot turn should carry matched emotion, got %q", transcript[1].Emotion)
	}
}

func TestTranscriptPersistedInBackground(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	if _, err := f.svc.SendMessage(context.Background(), sess.ID, "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitForBlob(t, f.blobs, "chat_messages_mom")
}

func waitForBlob(t *testing.T, blobs blobstore.Store, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, ok, err := blobs.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("blob get: %v", err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("blob %q never written", key)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionRestoresPersistedHistory(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)

	seed := []chat.Message{
		{ID: "1", Content: "hi", FromUser: true},
		{ID: "2", Content: "Hello dear!", FromUser: false},
	}
	raw := mustJSON(t, seed)
	if err := f.blobs.Set(context.Background(), "chat_messages_mom", raw); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	sess := mustSession(t, f.svc, "mom")
	transcript, _ := f.svc.Transcript(context.Background(), sess.ID)
	if len(transcript) != 2 || transcript[1].Content != "Hello dear!" {
		t.Fatalf("history not restored: %+v", transcript)
	}
}

func TestSendValidation(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	if _, err := f.svc.SendMessage(context.Background(), sess.ID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := f.svc.SendMessage(context.Background(), "nope", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.CreateSession(context.Background(), "ghost"); !errors.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestTypingSubscription(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	var mu sync.Mutex
	var events []bool
	unsubscribe, err := f.svc.SubscribeTyping(sess.ID, func(typing bool) {
		mu.Lock()
		events = append(events, typing)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if _, err := f.svc.SendMessage(context.Background(), sess.ID, "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("expected [true false] typing events, got %v", events)
	}
}

func TestDeletePersonaDataCascades(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, Config{AIEnabled: true}, stubGate{allow: true}, provider)
	sess := mustSession(t, f.svc, "mom")

	if _, err := f.svc.SendMessage(context.Background(), sess.ID, "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForBlob(t, f.blobs, "chat_messages_mom")

	if err := f.svc.DeletePersonaData(context.Background(), "mom"); err != nil {
		t.Fatalf("cascade delete failed: %v", err)
	}

	if _, err := f.svc.Transcript(context.Background(), sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("session should be dropped with its persona")
	}
	_, ok, _ := f.blobs.Get(context.Background(), "chat_messages_mom")
	if ok {
		t.Fatal("transcript blob should be removed")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
