package models

import (
	"time"

	"github.com/sakura-go/sakura/pkg/sakura"
)

// LoginRequest starts an email-link login
type LoginRequest struct {
	Email string `json:"email"`
}

// PollRequest checks a login started by LoginRequest
type PollRequest struct {
	Attempt sakura.SignInAttempt `json:"attempt"`
}

// Credentials are the saved login of the caller
type Credentials struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}

// CreateChatRequest opens a chat with a character
type CreateChatRequest struct {
	Credentials
	CharacterID string `json:"characterId"`
	Message     string `json:"message"`
	Locale      string `json:"locale,omitempty"`
}

// SendMessageRequest continues a chat
type SendMessageRequest struct {
	Credentials
	Message string `json:"message"`
	Locale  string `json:"locale,omitempty"`
}

// PendingResponse is returned while the email link has not been followed
type PendingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed gateway request
type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	RequestID      string `json:"requestId,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// RenderedCharacter adds HTML renderings of the markdown fields
type RenderedCharacter struct {
	sakura.Character
	DescriptionHTML  string `json:"descriptionHtml"`
	ScenarioHTML     string `json:"scenarioHtml"`
	FirstMessageHTML string `json:"firstMessageHtml"`
}

// RenderedMessage adds an HTML rendering of the content
type RenderedMessage struct {
	sakura.Message
	ContentHTML string `json:"contentHtml"`
}

// CacheEntry represents a cached upstream result
type CacheEntry struct {
	Kind      string
	Key       string
	Value     any
	CreatedAt time.Time
}
