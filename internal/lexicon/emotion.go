// Package lexicon holds the static emotion and memory tables the local
// responder draws canned replies from.
package lexicon

import (
	"math/rand"
	"strings"
)

// EmotionTrigger maps a keyword set to an emotion category with a pool of
// candidate replies and optional follow-up questions.
type EmotionTrigger struct {
	Emotion           string   `json:"emotion"`
	Emoji             string   `json:"emoji"`
	Keywords          []string `json:"keywords"`
	Responses         []string `json:"responses"`
	FollowUpQuestions []string `json:"followUpQuestions,omitempty"`
	Intensity         int      `json:"intensity"` // 1-10
}

const defaultEmotionResponse = "I see."

// MatchedKeyword returns the first keyword appearing in text,
// case-insensitive. An empty keyword list never matches.
func (t EmotionTrigger) MatchedKeyword(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, keyword := range t.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return keyword, true
		}
	}
	return "", false
}

// Matches reports whether any keyword appears in text.
func (t EmotionTrigger) Matches(text string) bool {
	_, ok := t.MatchedKeyword(text)
	return ok
}

// FullResponse picks a random response from the pool and, with an independent
// 50% chance, appends a random follow-up question.
func (t EmotionTrigger) FullResponse(rng *rand.Rand) string {
	if len(t.Responses) == 0 {
		return defaultEmotionResponse
	}
	response := t.Responses[rng.Intn(len(t.Responses))]
	if len(t.FollowUpQuestions) > 0 && rng.Intn(2) == 0 {
		response += " " + t.FollowUpQuestions[rng.Intn(len(t.FollowUpQuestions))]
	}
	return response
}

// EmotionLexicon matches text against custom then default triggers in
// declaration order; first match wins.
type EmotionLexicon struct {
	custom   []EmotionTrigger
	defaults []EmotionTrigger
}

// NewEmotionLexicon returns a lexicon preloaded with the built-in categories.
func NewEmotionLexicon() *EmotionLexicon {
	return &EmotionLexicon{defaults: defaultEmotionTriggers()}
}

// AddTrigger registers a runtime trigger. Custom triggers take matching
// priority over the defaults.
func (l *EmotionLexicon) AddTrigger(t EmotionTrigger) {
	l.custom = append(l.custom, t)
}

// FindTrigger returns the first trigger whose keywords match text.
func (l *EmotionLexicon) FindTrigger(text string) (EmotionTrigger, bool) {
	for _, t := range l.custom {
		if t.Matches(text) {
			return t, true
		}
	}
	for _, t := range l.defaults {
		if t.Matches(text) {
			return t, true
		}
	}
	return EmotionTrigger{}, false
}

// FindAllTriggers returns every matching trigger, custom first.
func (l *EmotionLexicon) FindAllTriggers(text string) []EmotionTrigger {
	var matched []EmotionTrigger
	for _, t := range l.custom {
		if t.Matches(text) {
			matched = append(matched, t)
		}
	}
	for _, t := range l.defaults {
		if t.Matches(text) {
			matched = append(matched, t)
		}
	}
	return matched
}

// AggregateIntensity computes the mean intensity of all matched triggers,
// integer-divided and capped at 10. No match yields 0.
func (l *EmotionLexicon) AggregateIntensity(text string) int {
	matched := l.FindAllTriggers(text)
	if len(matched) == 0 {
		return 0
	}
	total := 0
	for _, t := range matched {
		total += t.Intensity
	}
	mean := total / len(matched)
	if mean > 10 {
		mean = 10
	}
	return mean
}

func defaultEmotionTriggers() []EmotionTrigger {
	return []EmotionTrigger{
		{
			Emotion:  "lonely",
			Emoji:    "🫂",
			Keywords: []string{"lonely", "alone", "nobody", "no one", "by myself", "isolated"},
			Responses: []string{
				"I'm right here with you.",
				"You're not alone, I promise.",
				"I know that feeling. Want to tell me about it?",
			},
			FollowUpQuestions: []string{
				"What's been making you feel that way?",
				"When did it start feeling like this?",
			},
			Intensity: 8,
		},
		{
			Emotion:  "want-to-talk",
			Emoji:    "💬",
			Keywords: []string{"want to talk", "need to talk", "can we talk", "listen to me", "hear me out"},
			Responses: []string{
				"Of course. I'm listening.",
				"Always. Tell me everything.",
				"I've got all the time in the world for you.",
			},
			FollowUpQuestions: []string{
				"What's on your mind?",
			},
			Intensity: 6,
		},
		{
			Emotion:  "thank-you",
			Emoji:    "💛",
			Keywords: []string{"thank", "thanks", "grateful", "appreciate"},
			Responses: []string{
				"You don't have to thank me.",
				"Anytime. That's what I'm here for.",
				"It makes me happy to hear that.",
			},
			Intensity: 4,
		},
		{
			Emotion:  "tired",
			Emoji:    "😴",
			Keywords: []string{"tired", "exhausted", "sleepy", "worn out", "no energy", "drained"},
			Responses: []string{
				"You've been working so hard. Take a break.",
				"Rest a little. The world can wait.",
				"Get some sleep tonight, okay?",
			},
			FollowUpQuestions: []string{
				"Did you sleep well last night?",
				"Have you had a chance to rest today?",
			},
			Intensity: 5,
		},
		{
			Emotion:  "happy",
			Emoji:    "😊",
			Keywords: []string{"happy", "great news", "wonderful", "amazing", "excited", "so good"},
			Responses: []string{
				"That's wonderful! I'm so glad.",
				"You just made my day too.",
				"See? Good things do happen.",
			},
			FollowUpQuestions: []string{
				"Tell me more about it!",
			},
			Intensity: 7,
		},
		{
			Emotion:  "worried",
			Emoji:    "😟",
			Keywords: []string{"worried", "anxious", "nervous", "scared", "afraid", "stress"},
			Responses: []string{
				"Take a deep breath. We'll figure it out together.",
				"Whatever happens, I'm on your side.",
				"It's okay to be worried. Talk me through it.",
			},
			FollowUpQuestions: []string{
				"What's worrying you the most?",
			},
			Intensity: 7,
		},
	}
}
