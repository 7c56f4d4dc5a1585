package chat

import "time"

// MaxRetained caps the in-memory history per session. The blob store keeps the
// full transcript.
const MaxRetained = 100

// Message persists a single conversation turn. Messages are immutable once
// created; use the With* helpers to derive modified copies.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId,omitempty"`
	Content        string    `json:"content"`
	FromUser       bool      `json:"isFromUser"`
	Emotion        string    `json:"emotion,omitempty"`
	EmotionTrigger string    `json:"emotionTrigger,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}

// WithEmotion returns a copy carrying the matched emotion category. Emotion
// fields are only ever set on bot-authored messages; copies of user messages
// are returned unchanged.
func (m Message) WithEmotion(emotion, trigger string) Message {
	if m.FromUser {
		return m
	}
	m.Emotion = emotion
	m.EmotionTrigger = trigger
	return m
}

// WithContent returns a copy with replaced content.
func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}

// Trim drops the oldest entries so at most MaxRetained remain.
func Trim(messages []Message) []Message {
	if len(messages) <= MaxRetained {
		return messages
	}
	return messages[len(messages)-MaxRetained:]
}
