package responder

import (
	"strings"

	"github.com/harborchat/companion/internal/model/chat"
	"github.com/harborchat/companion/internal/model/persona"
)

// HistoryLimit is how many trailing history entries the prompt carries. Older
// entries are truncated, not summarized.
const HistoryLimit = 10

// BuildPrompt serializes the persona, trimmed history, and current message
// into a single text block. Output is a pure function of its inputs so remote
// calls stay reproducible.
func BuildPrompt(p persona.Persona, history []chat.Message, userMessage, emotionContext string) string {
	var b strings.Builder

	b.WriteString("You are ")
	b.WriteString(p.Name)
	b.WriteString(", the user's ")
	b.WriteString(p.Relationship)
	b.WriteString(".\n")
	if len(p.Personality) > 0 {
		b.WriteString("Personality: ")
		b.WriteString(strings.Join(p.Personality, ", "))
		b.WriteString("\n")
	}
	b.WriteString("Speech style: ")
	b.WriteString(p.SpeechStyle)
	b.WriteString("\n")
	if len(p.FavoriteTopics) > 0 {
		b.WriteString("Favorite topics: ")
		b.WriteString(strings.Join(p.FavoriteTopics, ", "))
		b.WriteString("\n")
	}

	startIdx := 0
	if len(history) > HistoryLimit {
		startIdx = len(history) - HistoryLimit
	}
	if startIdx < len(history) {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range history[startIdx:] {
			if msg.FromUser {
				b.WriteString("User: ")
			} else {
				b.WriteString("Assistant: ")
			}
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	if emotionContext != "" {
		b.WriteString("\nDetected user emotion: ")
		b.WriteString(emotionContext)
		b.WriteString("\n")
	}

	b.WriteString("\nCurrent message: ")
	b.WriteString(userMessage)
	return b.String()
}
