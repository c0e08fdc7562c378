package sakura

import (
	"encoding/json"
	"strings"
	"time"
)

// SignInAttempt is an in-progress email-link login.
type SignInAttempt struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Cookie string `json:"cookie"`
}

// AuthorizedUser is the result of a completed login. The library never stores
// it; callers keep SessionID and RefreshToken to reuse the login.
type AuthorizedUser struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ImageURL     string `json:"imageUrl"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	SessionID    string `json:"sessionId"`
}

// Character is the character card as rendered by the frontend.
type Character struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	Description         string                `json:"description"`
	NSFW                bool                  `json:"nsfw"`
	Persona             string                `json:"persona"`
	ImageURI            string                `json:"imageUri"`
	Scenario            string                `json:"scenario"`
	FirstMessage        string                `json:"firstMessage"`
	Instructions        string                `json:"instructions"`
	GenderIdentity      string                `json:"genderIdentity"`
	ExampleConversation []ExampleConversation `json:"exampleConversation"`
	Truncated           bool                  `json:"truncated"`
	MessageCount        int                   `json:"messageCount"`
	CreatedAt           Timestamp             `json:"createdAt"`
	CreatorID           string                `json:"creatorId"`
	CreatorUsername     string                `json:"creatorUsername"`
	CreatorImageURL     string                `json:"creatorImageUrl"`
	CreatorTier         json.RawMessage       `json:"creatorTier,omitempty"`
	Visibility          string                `json:"visibility"`
	Tags                json.RawMessage       `json:"tags,omitempty"`
	Categories          []string              `json:"categories"`
	Favorited           bool                  `json:"favorited"`
	ModerationLabels    json.RawMessage       `json:"moderationLabels,omitempty"`
	ExplicitImage       bool                  `json:"explicitImage"`
}

// ExampleConversation is one turn of a character's sample dialogue.
type ExampleConversation struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// stringFields lists every text field that may hold a payload reference.
func (c *Character) stringFields() []*string {
	fields := []*string{
		&c.ID, &c.Name, &c.Description, &c.Persona, &c.ImageURI, &c.Scenario,
		&c.FirstMessage, &c.Instructions, &c.GenderIdentity, &c.CreatorID,
		&c.CreatorUsername, &c.CreatorImageURL, &c.Visibility,
	}
	for i := range c.ExampleConversation {
		fields = append(fields, &c.ExampleConversation[i].Content)
	}
	return fields
}

// Message is a single chat message.
type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
}

const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// ChatResponse is the decoded body of the chat endpoint.
type ChatResponse struct {
	ChatID   string    `json:"chatId"`
	Messages []Message `json:"messages"`
	Success  bool      `json:"success"`
}

// Last returns the newest message.
func (r *ChatResponse) Last() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// Timestamp decodes the handful of date shapes the site emits. Anything else
// decodes to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	// Numbers, objects and null leave the time zero.
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil || raw == "" {
		return nil
	}

	// Flight payloads encode dates as "$D<iso>".
	value := strings.TrimPrefix(raw, "$D")
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}

	// Unknown shapes stay zero.
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
