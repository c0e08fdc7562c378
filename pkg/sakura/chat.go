package sakura

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

type chatRequest struct {
	Context chatContext `json:"context"`
	Action  chatAction  `json:"action"`
}

type chatContext struct {
	CharacterID string    `json:"characterId,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	Locale      string    `json:"locale"`
	Messages    []Message `json:"messages,omitempty"`
}

type chatAction struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

const actionAppend = "append"

var errNoChatPayload = errors.New("no chat payload in response")

// CreateChat opens a chat with the character, seeded with the character's
// greeting, and sends the first user message.
func (c *Client) CreateChat(ctx context.Context, sessionID, refreshToken string, character *Character, firstMessage, locale string) (*ChatResponse, error) {
	if character == nil || character.ID == "" {
		return nil, fmt.Errorf("%w: character id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(firstMessage) == "" {
		return nil, fmt.Errorf("%w: first message is empty", ErrInvalidArgument)
	}
	locale, err := normalizeLocale(locale)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Context: chatContext{
			CharacterID: character.ID,
			Locale:      locale,
			Messages: []Message{{
				Content: character.FirstMessage,
				Role:    RoleAssistant,
				Type:    "text",
			}},
		},
		Action: chatAction{Content: firstMessage, Type: actionAppend},
	}

	resp, err := c.postChat(ctx, "create_chat", sessionID, refreshToken, body, "failed to create new chat")
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"character_id": character.ID,
		"chat_id":      resp.ChatID,
	}).Info("Chat created")

	return resp, nil
}

// SendMessage appends a user message to a chat and returns the character's reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, refreshToken, chatID, message, locale string) (*Message, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidArgument)
	}
	locale, err := normalizeLocale(locale)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Context: chatContext{ChatID: chatID, Locale: locale},
		Action:  chatAction{Content: message, Type: actionAppend},
	}

	resp, err := c.postChat(ctx, "send_message", sessionID, refreshToken, body, "failed to send message")
	if err != nil {
		return nil, err
	}

	last, _ := resp.Last()
	return &last, nil
}

func (c *Client) postChat(ctx context.Context, op, sessionID, refreshToken string, body chatRequest, failure string) (*ChatResponse, error) {
	accessToken, err := c.GetAccessToken(ctx, sessionID, refreshToken)
	if err != nil {
		return nil, err
	}

	cookies, err := c.session.Cookies(ctx, false)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Cookie", cookies)

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, upstreamError(failure, resp)
	}

	chat, err := parseChatResponse(string(resp.Body))
	if err != nil {
		se := newServiceError(failure+": "+err.Error(), resp)
		se.Cause = err
		return nil, se
	}
	if !chat.Success {
		return nil, newServiceError(failure+": success is false", resp)
	}
	if len(chat.Messages) == 0 {
		return nil, newServiceError(failure+": no messages in response", resp)
	}

	return chat, nil
}

// parseChatResponse finds the newest line that mentions success and decodes
// its outermost {...} span. Streamed responses may carry the object as an
// escaped string, so a failed decode is retried once after unescaping.
func parseChatResponse(body string) (*ChatResponse, error) {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "success") {
			continue
		}

		start := strings.IndexByte(line, '{')
		end := strings.LastIndexByte(line, '}')
		if start < 0 || end < start {
			continue
		}
		span := line[start : end+1]

		var chat ChatResponse
		if err := json.Unmarshal([]byte(span), &chat); err == nil {
			return &chat, nil
		}
		if err := json.Unmarshal([]byte(unescape(span)), &chat); err == nil {
			return &chat, nil
		}
	}
	return nil, errNoChatPayload
}

// unescape removes one level of backslash escaping.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 == len(s) {
			b.WriteByte(ch)
			continue
		}

		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'u':
			r, ok := hexRune(s, i+1)
			if !ok {
				b.WriteByte('u')
				continue
			}
			i += 4
			// Characters outside the BMP arrive as a \uXXXX\uXXXX surrogate pair.
			if utf16.IsSurrogate(r) && strings.HasPrefix(s[i+1:], `\u`) {
				if low, ok := hexRune(s, i+3); ok {
					if pair := utf16.DecodeRune(r, low); pair != utf8.RuneError {
						r = pair
						i += 6
					}
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

// hexRune reads the four hex digits starting at s[at].
func hexRune(s string, at int) (rune, bool) {
	if at+4 > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[at:at+4], 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

func normalizeLocale(locale string) (string, error) {
	if locale == "" {
		return DefaultLocale, nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("%w: locale %q: %v", ErrInvalidArgument, locale, err)
	}
	return tag.String(), nil
}
