package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sakura-go/sakura/internal/middleware"
	"github.com/sakura-go/sakura/internal/models"
	"github.com/sakura-go/sakura/pkg/markdown"
	"github.com/sakura-go/sakura/pkg/sakura"
	"github.com/sirupsen/logrus"
)

// handleCreateChat looks the character up first: the chat is seeded with its
// greeting.
func (g *Gateway) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChatRequest
	if !g.decodeBody(w, r, &req) {
		return
	}
	if err := validateChatInput(req.Credentials, req.Message); err != nil {
		g.writeError(w, r, "create_chat", err)
		return
	}
	if req.CharacterID == "" {
		g.writeError(w, r, "create_chat", fmt.Errorf("%w: characterId is required", sakura.ErrInvalidArgument))
		return
	}

	character, err := g.character(r.Context(), req.CharacterID)
	if err != nil {
		g.writeError(w, r, "create_chat", err)
		return
	}

	chat, err := g.client.CreateChat(r.Context(), req.SessionID, req.RefreshToken, character, req.Message, g.locale(req.Locale))
	if err != nil {
		g.writeError(w, r, "create_chat", err)
		return
	}

	g.log(r, "create_chat").WithFields(logrus.Fields{
		"character_id": character.ID,
		"chat_id":      chat.ChatID,
	}).Info("Chat created")

	if wantsHTML(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"chatId":   chat.ChatID,
			"success":  chat.Success,
			"messages": renderMessages(chat.Messages, character.Name),
		})
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !g.decodeBody(w, r, &req) {
		return
	}
	if err := validateChatInput(req.Credentials, req.Message); err != nil {
		g.writeError(w, r, "send_message", err)
		return
	}

	chatID := mux.Vars(r)["chatId"]
	reply, err := g.client.SendMessage(r.Context(), req.SessionID, req.RefreshToken, chatID, req.Message, g.locale(req.Locale))
	if err != nil {
		g.writeError(w, r, "send_message", err)
		return
	}

	if wantsHTML(r) {
		writeJSON(w, http.StatusOK, renderMessages([]sakura.Message{*reply}, "")[0])
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (g *Gateway) locale(requested string) string {
	if requested != "" {
		return requested
	}
	return g.config.Sakura.Locale
}

func validateChatInput(creds models.Credentials, message string) error {
	if creds.SessionID == "" || creds.RefreshToken == "" {
		return fmt.Errorf("%w: sessionId and refreshToken are required", sakura.ErrInvalidArgument)
	}
	if err := middleware.ValidateMessage(message); err != nil {
		return fmt.Errorf("%w: %v", sakura.ErrInvalidArgument, err)
	}
	return nil
}

func renderMessages(messages []sakura.Message, characterName string) []models.RenderedMessage {
	names := markdown.Names{Char: characterName}
	rendered := make([]models.RenderedMessage, len(messages))
	for i, m := range messages {
		rendered[i] = models.RenderedMessage{
			Message:     m,
			ContentHTML: markdown.ToHTMLWithNames(m.Content, names),
		}
	}
	return rendered
}
