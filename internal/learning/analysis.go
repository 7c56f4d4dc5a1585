package learning

import (
	"context"
	"strings"
)

// ChatLogAnalysis is the result of an external chat-log import: frequent
// phrases, detected topics, and the writer's communication style.
type ChatLogAnalysis struct {
	Phrases []string `json:"phrases"`
	Topics  []string `json:"topics"`
	Style   string   `json:"communicationStyle,omitempty"`
}

// IntegrateAnalysis synthesizes canned response pools for each analyzed phrase
// and persists them alongside conversation-learned phrases.
func (s *Store) IntegrateAnalysis(ctx context.Context, personaID string, analysis ChatLogAnalysis) error {
	key := s.storageKey(personaID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	changed := false
	seed := func(keyword string, responses []string) {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			return
		}
		for _, response := range responses {
			if containsExact(entry[keyword], response) {
				continue
			}
			entry[keyword] = append(entry[keyword], response)
			changed = true
		}
	}

	for _, phrase := range analysis.Phrases {
		seed(phrase, synthesizeResponses(phrase, analysis.Style))
	}
	for _, topic := range analysis.Topics {
		seed(topic, []string{
			"You used to bring that up all the time.",
			"Oh, " + strings.TrimSpace(topic) + " again? I love that we still talk about it.",
		})
	}

	if !changed {
		return nil
	}
	return s.persist(ctx, key, entry)
}

// synthesizeResponses derives a reply pool from the phrase's content. The
// switch mirrors how the imported logs were categorized upstream.
func synthesizeResponses(phrase, style string) []string {
	lowered := strings.ToLower(phrase)

	var pool []string
	switch {
	case strings.Contains(lowered, "thank"):
		pool = []string{
			"You're welcome, always.",
			"No need to thank me.",
		}
	case strings.Contains(lowered, "love"):
		pool = []string{
			"I love you too.",
			"That means more than you know.",
		}
	case strings.Contains(lowered, "miss"):
		pool = []string{
			"I miss you too, every day.",
			"I'm always closer than you think.",
		}
	case strings.Contains(lowered, "sorry"):
		pool = []string{
			"There's nothing to be sorry about.",
			"It's okay. It always was.",
		}
	case strings.Contains(lowered, "good morning"), strings.Contains(lowered, "good night"):
		pool = []string{
			"Good morning! Did you sleep well?",
			"Sleep tight. Talk tomorrow?",
		}
	default:
		pool = []string{
			"That sounds just like you.",
			"Tell me more about that.",
		}
	}

	if strings.EqualFold(style, "playful") {
		pool = append(pool, "Ha! Classic you.")
	}
	return pool
}
