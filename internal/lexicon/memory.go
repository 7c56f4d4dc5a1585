package lexicon

import (
	"math/rand"
	"strings"
)

// MemoryKeyword maps a topic to nostalgic canned responses. EmotionalWeight
// above 0.8 marks the topic as a special memory and changes the reply framing.
type MemoryKeyword struct {
	Keyword         string   `json:"keyword"`
	RelatedWords    []string `json:"relatedWords,omitempty"`
	MemoryResponses []string `json:"memoryResponses"`
	EmotionalWeight float64  `json:"emotionalWeight"` // 0.0-1.0
}

const (
	defaultMemoryResponse = "I understand that memory."
	specialMemoryWeight   = 0.8
)

// Matches reports whether the keyword or any related word appears in text.
func (k MemoryKeyword) Matches(text string) bool {
	lowered := strings.ToLower(text)
	if k.Keyword != "" && strings.Contains(lowered, strings.ToLower(k.Keyword)) {
		return true
	}
	for _, word := range k.RelatedWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// Response picks a random memory response. High-weight topics get the special
// memory framing prepended.
func (k MemoryKeyword) Response(rng *rand.Rand) string {
	if len(k.MemoryResponses) == 0 {
		return defaultMemoryResponse
	}
	response := k.MemoryResponses[rng.Intn(len(k.MemoryResponses))]
	if k.EmotionalWeight > specialMemoryWeight {
		return "That's such a special memory to me. " + response
	}
	return response
}

// MemoryLexicon matches text against the topic table in declaration order.
type MemoryLexicon struct {
	entries []MemoryKeyword
}

// NewMemoryLexicon returns a lexicon preloaded with the built-in topics.
func NewMemoryLexicon() *MemoryLexicon {
	return &MemoryLexicon{entries: defaultMemoryKeywords()}
}

// Add registers an extra topic at the end of the table.
func (l *MemoryLexicon) Add(k MemoryKeyword) {
	l.entries = append(l.entries, k)
}

// Find returns the first topic whose keyword set matches text.
func (l *MemoryLexicon) Find(text string) (MemoryKeyword, bool) {
	for _, k := range l.entries {
		if k.Matches(text) {
			return k, true
		}
	}
	return MemoryKeyword{}, false
}

func defaultMemoryKeywords() []MemoryKeyword {
	return []MemoryKeyword{
		{
			Keyword:      "birthday",
			RelatedWords: []string{"cake", "candles", "celebrate"},
			MemoryResponses: []string{
				"Remember the year the candles wouldn't go out? We laughed so much.",
				"Your birthdays were always my favorite day of the year.",
			},
			EmotionalWeight: 0.9,
		},
		{
			Keyword:      "home",
			RelatedWords: []string{"house", "kitchen", "backyard"},
			MemoryResponses: []string{
				"The house always felt warmer when you were in it.",
				"I can still picture you running through the backyard.",
			},
			EmotionalWeight: 0.7,
		},
		{
			Keyword:      "holiday",
			RelatedWords: []string{"christmas", "thanksgiving", "new year"},
			MemoryResponses: []string{
				"The holidays were never quiet with our family, were they?",
				"I still set the table the same way we always did.",
			},
			EmotionalWeight: 0.85,
		},
		{
			Keyword:      "school",
			RelatedWords: []string{"teacher", "homework", "graduation"},
			MemoryResponses: []string{
				"You worked so hard back then. I was always proud.",
				"Graduation day, I don't think I stopped smiling once.",
			},
			EmotionalWeight: 0.6,
		},
		{
			Keyword:      "vacation",
			RelatedWords: []string{"beach", "trip", "travel"},
			MemoryResponses: []string{
				"That trip to the coast, the photos are still on the shelf.",
				"We should have taken more trips like that one.",
			},
			EmotionalWeight: 0.75,
		},
	}
}
