package responder

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/harborchat/companion/internal/learning"
	"github.com/harborchat/companion/internal/lexicon"
	"github.com/harborchat/companion/internal/model/chat"
	"github.com/harborchat/companion/internal/model/persona"
)

// Reply is a locally composed bot turn. Emotion fields are set when an
// emotion trigger matched the user message.
type Reply struct {
	Text    string
	Emotion string
	Trigger string
}

const longConversationThreshold = 20

var genericReplies = []string{
	"I hear you.",
	"Mm, tell me more.",
	"That's interesting.",
	"I'm glad you told me that.",
	"Really? Go on.",
}

var timeAwareVariants = map[string]string{
	"lonely":       "I've been thinking about you all day, you know.",
	"want-to-talk": "I was hoping you'd stop by today.",
	"thank-you":    "You've been so sweet lately. It doesn't go unnoticed.",
	"tired":        "You've seemed tired lately. Promise me you'll rest tonight.",
	"happy":        "You've sounded so much brighter lately. It suits you.",
	"worried":      "You've had a lot on your mind lately. I can tell.",
}

// LocalComposer produces a complete reply with no network dependency. It
// never fails and always returns a non-empty string.
type LocalComposer struct {
	emotions *lexicon.EmotionLexicon
	memories *lexicon.MemoryLexicon
	learned  *learning.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocalComposer wires the lexicons and learned phrase store. A nil rng gets
// a time-seeded source; tests inject a fixed seed.
func NewLocalComposer(emotions *lexicon.EmotionLexicon, memories *lexicon.MemoryLexicon, learned *learning.Store, rng *rand.Rand) *LocalComposer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &LocalComposer{
		emotions: emotions,
		memories: memories,
		learned:  learned,
		rng:      rng,
	}
}

// Compose runs the local response pipeline: learned phrase, memory keyword,
// emotion trigger, then a generic acknowledgment, followed by the
// conversation-aware adjustments.
func (c *LocalComposer) Compose(ctx context.Context, p persona.Persona, history []chat.Message, userMessage string) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply := Reply{}
	if trigger, ok := c.emotions.FindTrigger(userMessage); ok {
		reply.Emotion = trigger.Emotion
		if keyword, matched := trigger.MatchedKeyword(userMessage); matched {
			reply.Trigger = keyword
		}
	}

	reply.Text = c.baseReply(ctx, p, userMessage)

	// Occasionally swap in a recency-flavored line tied to the conversation's
	// dominant emotion.
	if dominant := dominantEmotion(c.emotions, history); dominant != "" {
		if variant, ok := timeAwareVariants[dominant]; ok && c.rng.Intn(4) == 0 {
			reply.Text = variant
		}
	}

	// Two filler bot replies in a row: steer toward one of the persona's
	// favorite topics instead of acknowledging again.
	if lastTwoBotRepliesGeneric(history) {
		reply.Text = topicChange(p, c.rng)
	}

	if len(history) > longConversationThreshold && c.rng.Intn(3) == 0 {
		reply.Text += " I really do love talking with you like this."
	}

	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = "I'm here."
	}
	return reply
}

func (c *LocalComposer) baseReply(ctx context.Context, p persona.Persona, userMessage string) string {
	if c.learned != nil {
		if response, ok := c.learned.FindResponse(ctx, p.ID, userMessage, c.rng); ok {
			return response
		}
	}
	if keyword, ok := c.memories.Find(userMessage); ok {
		return keyword.Response(c.rng)
	}
	if trigger, ok := c.emotions.FindTrigger(userMessage); ok {
		return trigger.FullResponse(c.rng)
	}
	return c.genericReply(p)
}

func (c *LocalComposer) genericReply(p persona.Persona) string {
	text := genericReplies[c.rng.Intn(len(genericReplies))]

	// Flavor the acknowledgment with the persona's own voice half the time.
	switch {
	case len(p.Catchphrases) > 0 && c.rng.Intn(2) == 0:
		text += " " + p.Catchphrases[c.rng.Intn(len(p.Catchphrases))]
	case len(p.FavoriteTopics) > 0 && c.rng.Intn(2) == 0:
		text += " By the way, have you thought about " + p.FavoriteTopics[c.rng.Intn(len(p.FavoriteTopics))] + " lately?"
	}
	return text
}

func topicChange(p persona.Persona, rng *rand.Rand) string {
	if len(p.FavoriteTopics) == 0 {
		return "Let's talk about something different. What's been new with you?"
	}
	topic := p.FavoriteTopics[rng.Intn(len(p.FavoriteTopics))]
	return "Let's talk about something else. How about " + topic + "?"
}

// dominantEmotion returns the most frequent matched trigger category across
// bot-authored messages, or "" when none matched.
func dominantEmotion(emotions *lexicon.EmotionLexicon, history []chat.Message) string {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, msg := range history {
		if msg.FromUser {
			continue
		}
		category := msg.Emotion
		if category == "" {
			if trigger, ok := emotions.FindTrigger(msg.Content); ok {
				category = trigger.Emotion
			}
		}
		if category == "" {
			continue
		}
		if _, seen := counts[category]; !seen {
			order = append(order, category)
		}
		counts[category]++
	}

	dominant := ""
	best := 0
	for _, category := range order {
		if counts[category] > best {
			best = counts[category]
			dominant = category
		}
	}
	return dominant
}

// lastTwoBotRepliesGeneric reports whether the two most recent bot messages
// both look like filler acknowledgments.
func lastTwoBotRepliesGeneric(history []chat.Message) bool {
	generic := 0
	for i := len(history) - 1; i >= 0 && generic < 2; i-- {
		if history[i].FromUser {
			continue
		}
		if !isGenericReply(history[i].Content) {
			return false
		}
		generic++
	}
	return generic == 2
}

func isGenericReply(text string) bool {
	for _, candidate := range genericReplies {
		if strings.HasPrefix(text, candidate) {
			return true
		}
	}
	return false
}
