// Package learning maintains the learned-phrase cache built from conversation
// history and imported chat-log analysis.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/blobstore"
	"github.com/harborchat/companion/internal/model/chat"
)

// Scope controls whether learned phrases are shared across personas or kept
// per persona. Per-persona is the default; the global mode exists for
// compatibility with data written under the legacy single key.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopePerPersona Scope = "per-persona"

	globalKey = "learnedPhrases"

	// RelearnWindow bounds each learning pass to the most recent messages.
	RelearnWindow = 1000
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "you": {}, "your": {},
	"are": {}, "was": {}, "were": {}, "have": {}, "has": {}, "had": {},
	"this": {}, "that": {}, "with": {}, "what": {}, "when": {}, "how": {},
	"about": {}, "just": {}, "really": {}, "very": {}, "not": {}, "can": {},
	"will": {}, "its": {}, "it's": {}, "i'm": {}, "im": {}, "too": {},
}

// Store is the persona-scoped learned phrase store. The phrase map only grows;
// the sole shrink path is an explicit Clear.
type Store struct {
	mu      sync.RWMutex
	blobs   blobstore.Store
	scope   Scope
	log     *zap.Logger
	phrases map[string]map[string][]string // storage key -> keyword -> responses
}

// NewStore creates a learned phrase store backed by the blob collaborator.
func NewStore(blobs blobstore.Store, scope Scope, log *zap.Logger) *Store {
	if scope != ScopeGlobal {
		scope = ScopePerPersona
	}
	return &Store{
		blobs:   blobs,
		scope:   scope,
		log:     log,
		phrases: make(map[string]map[string][]string),
	}
}

func (s *Store) storageKey(personaID string) string {
	if s.scope == ScopeGlobal {
		return globalKey
	}
	return "learned_phrases_" + personaID
}

// load pulls the persisted map for a key into memory once; callers must hold
// the write lock.
func (s *Store) load(ctx context.Context, key string) (map[string][]string, error) {
	if cached, ok := s.phrases[key]; ok {
		return cached, nil
	}

	entry := make(map[string][]string)
	raw, ok, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load learned phrases %s: %w", key, err)
	}
	if ok {
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode learned phrases %s: %w", key, err)
		}
	}
	s.phrases[key] = entry
	return entry, nil
}

func (s *Store) persist(ctx context.Context, key string, entry map[string][]string) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode learned phrases %s: %w", key, err)
	}
	if err := s.blobs.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("persist learned phrases %s: %w", key, err)
	}
	return nil
}

// LearnFromConversation scans consecutive (user, bot) pairs and associates the
// bot reply with every keyword extracted from the user message. Only the most
// recent RelearnWindow messages are considered.
func (s *Store) LearnFromConversation(ctx context.Context, personaID string, messages []chat.Message) error {
	if len(messages) > RelearnWindow {
		messages = messages[len(messages)-RelearnWindow:]
	}

	key := s.storageKey(personaID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	changed := false
	for i := 0; i+1 < len(messages); i++ {
		userMsg, botMsg := messages[i], messages[i+1]
		if !userMsg.FromUser || botMsg.FromUser {
			continue
		}
		response := strings.TrimSpace(botMsg.Content)
		if response == "" {
			continue
		}
		for _, keyword := range ExtractKeywords(userMsg.Content) {
			if containsExact(entry[keyword], response) {
				continue
			}
			entry[keyword] = append(entry[keyword], response)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return s.persist(ctx, key, entry)
}

// FindResponse matches message against stored keywords, case-insensitive
// substring, and returns a random response from the matched pool.
func (s *Store) FindResponse(ctx context.Context, personaID, message string, rng *rand.Rand) (string, bool) {
	key := s.storageKey(personaID)

	s.mu.Lock()
	entry, err := s.load(ctx, key)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("learned phrase lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}

	lowered := strings.ToLower(message)
	var pools [][]string
	for keyword, responses := range entry {
		if len(responses) == 0 {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			pools = append(pools, responses)
		}
	}
	s.mu.Unlock()

	if len(pools) == 0 {
		return "", false
	}
	pool := pools[rng.Intn(len(pools))]
	return pool[rng.Intn(len(pool))], true
}

// Clear drops everything learned for the persona (or the shared map in global
// scope).
func (s *Store) Clear(ctx context.Context, personaID string) error {
	key := s.storageKey(personaID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.phrases, key)
	if err := s.blobs.Remove(ctx, key); err != nil {
		return fmt.Errorf("clear learned phrases %s: %w", key, err)
	}
	return nil
}

// KeywordCount reports how many distinct keywords are stored for the persona.
func (s *Store) KeywordCount(ctx context.Context, personaID string) int {
	key := s.storageKey(personaID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.load(ctx, key)
	if err != nil {
		return 0
	}
	return len(entry)
}

// ExtractKeywords tokenizes on whitespace, drops one-rune tokens and
// stopwords, and normalizes to lower case.
func ExtractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, ".,!?;:\"'()")
		if len([]rune(token)) <= 1 {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}

func containsExact(pool []string, candidate string) bool {
	for _, existing := range pool {
		if existing == candidate {
			return true
		}
	}
	return false
}
