package persona

import (
	"errors"
	"strings"
)

// Mood captures the persona's baseline feeling surfaced to clients.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
	MoodExcited Mood = "excited"
	MoodCalm    Mood = "calm"
	MoodAnxious Mood = "anxious"
	MoodAngry   Mood = "angry"
	MoodNeutral Mood = "neutral"
)

// DisplayName returns the human-readable mood label.
func (m Mood) DisplayName() string {
	switch m {
	case MoodHappy:
		return "Happy"
	case MoodSad:
		return "Sad"
	case MoodExcited:
		return "Excited"
	case MoodCalm:
		return "Calm"
	case MoodAnxious:
		return "Anxious"
	case MoodAngry:
		return "Angry"
	default:
		return "Neutral"
	}
}

// Emoji returns the mood's emoji marker.
func (m Mood) Emoji() string {
	switch m {
	case MoodHappy:
		return "😊"
	case MoodSad:
		return "😢"
	case MoodExcited:
		return "🤩"
	case MoodCalm:
		return "😌"
	case MoodAnxious:
		return "😟"
	case MoodAngry:
		return "😠"
	default:
		return "🙂"
	}
}

// Color returns the hex color associated with the mood.
func (m Mood) Color() string {
	switch m {
	case MoodHappy:
		return "#FFD93D"
	case MoodSad:
		return "#6C91C2"
	case MoodExcited:
		return "#FF8C42"
	case MoodCalm:
		return "#8FC1A9"
	case MoodAnxious:
		return "#B39CD0"
	case MoodAngry:
		return "#E2574C"
	default:
		return "#ADB5BD"
	}
}

// Valid reports whether the mood is one of the seven known variants.
func (m Mood) Valid() bool {
	switch m {
	case MoodHappy, MoodSad, MoodExcited, MoodCalm, MoodAnxious, MoodAngry, MoodNeutral:
		return true
	}
	return false
}

// Customization holds the avatar presentation settings. When AvatarImageRef
// is set it takes precedence over the emoji.
type Customization struct {
	AvatarEmoji    string `json:"avatarEmoji,omitempty"`
	AvatarImageRef string `json:"avatarImageRef,omitempty"`
	AvatarColor    string `json:"avatarColor,omitempty"`
}

// UsesImage reports whether the image reference is the authoritative avatar.
func (c Customization) UsesImage() bool {
	return strings.TrimSpace(c.AvatarImageRef) != ""
}

// Persona captures a user-authored simulated conversational counterpart.
type Persona struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Relationship   string        `json:"relationship"`
	Personality    []string      `json:"personality"`
	FavoriteTopics []string      `json:"favoriteTopics,omitempty"`
	Catchphrases   []string      `json:"catchphrases,omitempty"`
	SpeechStyle    string        `json:"speechStyle"`
	Mood           Mood          `json:"mood,omitempty"`
	Customization  Customization `json:"customization"`
}

var (
	ErrNameRequired         = errors.New("persona name is required")
	ErrRelationshipRequired = errors.New("persona relationship is required")
	ErrPersonalityRequired  = errors.New("persona personality is required")
	ErrSpeechStyleRequired  = errors.New("persona speech style is required")
)

// Validate checks the fields required for a persona to take part in
// conversations. Personas failing validation are filtered out silently on load.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(p.Relationship) == "" {
		return ErrRelationshipRequired
	}
	if len(p.Personality) == 0 {
		return ErrPersonalityRequired
	}
	if strings.TrimSpace(p.SpeechStyle) == "" {
		return ErrSpeechStyleRequired
	}
	return nil
}

// Seed provides the default personas offered on first launch.
func Seed() []Persona {
	return []Persona{
		{
			ID:             "mom",
			Name:           "Mom",
			Relationship:   "Family",
			Personality:    []string{"warm", "caring", "a little worried about everything"},
			FavoriteTopics: []string{"cooking", "the garden", "family dinners"},
			Catchphrases:   []string{"Have you eaten yet?", "Wear something warm."},
			SpeechStyle:    "gentle and nurturing, always asks how you are doing",
			Mood:           MoodCalm,
			Customization:  Customization{AvatarEmoji: "👩", AvatarColor: "#F6BD60"},
		},
		{
			ID:             "best-friend",
			Name:           "Sam",
			Relationship:   "Best Friend",
			Personality:    []string{"funny", "loyal", "blunt when it matters"},
			FavoriteTopics: []string{"movies", "road trips", "terrible puns"},
			Catchphrases:   []string{"No way!", "Okay but hear me out."},
			SpeechStyle:    "casual and teasing, lots of jokes",
			Mood:           MoodHappy,
			Customization:  Customization{AvatarEmoji: "😎", AvatarColor: "#84A59D"},
		},
		{
			ID:             "grandpa",
			Name:           "Grandpa Joe",
			Relationship:   "Family",
			Personality:    []string{"patient", "nostalgic", "full of stories"},
			FavoriteTopics: []string{"fishing", "the old neighborhood", "woodworking"},
			Catchphrases:   []string{"Back in my day...", "Slow down, kiddo."},
			SpeechStyle:    "slow and thoughtful, fond of long stories",
			Mood:           MoodNeutral,
			Customization:  Customization{AvatarEmoji: "👴", AvatarColor: "#A98467"},
		},
	}
}
