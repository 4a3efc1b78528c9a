package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/auth"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

// titleLength is how much of the first message becomes a new
// conversation's title.
const titleLength = 100

// Augmenter decides whether a query needs live search results and returns
// them formatted for the prompt.
type Augmenter interface {
	Augment(ctx context.Context, query string) (string, bool)
}

type ChatHandler struct {
	Store    store.Store
	Streamer ai.Streamer
	Search   Augmenter // optional
	Sealer   *auth.Sealer
	Logger   *log.Logger
}

type SendMessageRequest struct {
	ConversationID int64   `json:"conversation_id"`
	Message        *string `json:"message"`
	Model          string  `json:"model"`
}

// SendMessage persists the user's message and streams the answer as
// server-sent events. The assistant reply is stored by a later call to
// SaveResponse; until then the conversation ends on the user's message.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil || req.Message == nil {
		writeError(w, http.StatusBadRequest, "Message required")
		return
	}
	text := strings.TrimSpace(*req.Message)
	if text == "" {
		writeError(w, http.StatusBadRequest, "Empty message")
		return
	}

	var conv *models.Conversation
	if req.ConversationID != 0 {
		conv, ok = h.ownedConversation(w, userID, req.ConversationID)
		if !ok {
			return
		}
	} else {
		model := req.Model
		if model == "" {
			model = ai.DefaultModel
		}
		conv = &models.Conversation{
			UserID:    userID,
			Title:     truncate(text, titleLength),
			ModelUsed: model,
		}
		if err := h.Store.CreateConversation(conv); err != nil {
			internalError(w, h.Logger, "create conversation", err)
			return
		}
		h.Logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	}

	userMsg := &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: text}
	if err := h.Store.CreateMessage(userMsg); err != nil {
		internalError(w, h.Logger, "create message", err)
		return
	}

	prior, err := h.Store.GetConversationMessages(conv.ID)
	if err != nil {
		internalError(w, h.Logger, "load history", err)
		return
	}

	model := req.Model
	if model == "" {
		model = conv.ModelUsed
	}
	aiReq := ai.Request{
		Prompt:  text,
		History: history(prior, userMsg.ID),
		Model:   model,
		APIKey:  h.userAPIKey(userID),
	}
	if h.Search != nil {
		if results, found := h.Search.Augment(r.Context(), text); found {
			aiReq.SearchContext = results
			if err := h.Store.MarkMessageSearched(userMsg.ID, text); err != nil {
				h.Logger.Warn("failed to flag searched message", "message_id", userMsg.ID, "err", err)
			}
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, h.Logger, "stream", fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-Id", strconv.FormatInt(conv.ID, 10))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Headers are committed from here on; failures travel in-band.
	for chunk := range h.Streamer.ChatWithStreaming(r.Context(), aiReq) {
		var event any
		switch {
		case chunk.Err != nil:
			h.Logger.Error("streaming error", "conversation_id", conv.ID, "err", chunk.Err)
			event = map[string]string{"error": chunk.Err.Error()}
		case chunk.Done:
			event = map[string]any{
				"done":            true,
				"conversation_id": conv.ID,
				"message_id":      userMsg.ID,
				"tokens":          chunk.Tokens,
			}
		default:
			event = map[string]string{"response": chunk.Content}
		}
		if err := writeEvent(w, flusher, event); err != nil {
			h.Logger.Warn("client went away mid-stream", "conversation_id", conv.ID, "err", err)
			return
		}
		if chunk.Err != nil || chunk.Done {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// history flattens stored messages into turns, leaving out the message
// being answered.
func history(messages []models.Message, exclude int64) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, m := range messages {
		if m.ID == exclude {
			continue
		}
		turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// userAPIKey returns the user's own upstream key, or "" to use the server's.
func (h *ChatHandler) userAPIKey(userID int64) string {
	if h.Sealer == nil {
		return ""
	}
	user, err := h.Store.GetUserByID(userID)
	if err != nil || !user.HasAPIKey() {
		return ""
	}
	key, err := h.Sealer.Open(user.APIKey)
	if err != nil {
		h.Logger.Warn("cannot open stored API key", "user_id", userID, "err", err)
		return ""
	}
	return key
}

type SaveResponseRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Response       string `json:"response"`
	TokensUsed     int    `json:"tokens_used"`
	Model          string `json:"model"`
}

// SaveResponse is the second half of a chat turn: it stores the streamed
// answer and adds its tokens to the conversation totals.
func (h *ChatHandler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SaveResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	text := strings.TrimSpace(req.Response)
	if req.ConversationID == 0 || text == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.TokensUsed < 0 {
		req.TokensUsed = 0
	}

	conv, ok := h.ownedConversation(w, userID, req.ConversationID)
	if !ok {
		return
	}
	model := req.Model
	if model == "" {
		model = conv.ModelUsed
	}

	msg, err := h.Store.SaveAssistantResponse(conv.ID, text, req.TokensUsed, ai.EstimateCost(0, req.TokensUsed, model))
	if err != nil {
		lookupError(w, h.Logger, "save response", err, "Conversation not found")
		return
	}
	h.Logger.Info("response saved", "conversation_id", conv.ID, "message_id", msg.ID, "tokens", req.TokensUsed)

	writeJSON(w, http.StatusCreated, map[string]int64{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
	})
}

// EditMessage rewrites a message and drops every later message of its
// conversation so the exchange can be regenerated.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Content required")
		return
	}

	if !h.ownedMessage(w, userID, id) {
		return
	}
	msg, removed, err := h.Store.EditMessage(id, strings.TrimSpace(req.Content))
	if err != nil {
		lookupError(w, h.Logger, "edit message", err, "Message not found")
		return
	}
	h.Logger.Info("message edited", "message_id", id, "removed", removed)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":        msg.ID,
		"content":   msg.Content,
		"is_edited": msg.IsEdited,
		"removed":   removed,
	})
}

// DeleteMessage removes a message and everything after it.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	if !h.ownedMessage(w, userID, id) {
		return
	}
	removed, err := h.Store.DeleteMessageAndAfter(id)
	if err != nil {
		lookupError(w, h.Logger, "delete message", err, "Message not found")
		return
	}
	h.Logger.Info("message deleted", "message_id", id, "removed", removed)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": removed})
}

func (h *ChatHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":        ai.Models(),
		"default_model": ai.DefaultModel,
	})
}

func (h *ChatHandler) CountTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text required")
		return
	}
	model := req.Model
	if model == "" {
		model = ai.DefaultModel
	}

	tokens := ai.EstimateTokens(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens":         tokens,
		"estimated_cost": ai.EstimateCost(tokens, 0, model),
	})
}

func (h *ChatHandler) ownedConversation(w http.ResponseWriter, userID, id int64) (*models.Conversation, bool) {
	return ownedConversation(w, h.Store, h.Logger, userID, id)
}

func (h *ChatHandler) ownedMessage(w http.ResponseWriter, userID, id int64) bool {
	msg, err := h.Store.GetMessage(id)
	if err != nil {
		lookupError(w, h.Logger, "get message", err, "Message not found")
		return false
	}
	conv, err := h.Store.GetConversation(msg.ConversationID)
	if err != nil {
		lookupError(w, h.Logger, "get conversation", err, "Message not found")
		return false
	}
	if conv.UserID != userID {
		writeError(w, http.StatusNotFound, "Message not found")
		return false
	}
	return true
}

// ownedConversation loads a conversation and answers 404 when it is
// missing or belongs to another user.
func ownedConversation(w http.ResponseWriter, s store.Store, logger *log.Logger, userID, id int64) (*models.Conversation, bool) {
	conv, err := s.GetConversation(id)
	if err != nil {
		lookupError(w, logger, "get conversation", err, "Conversation not found")
		return nil, false
	}
	if conv.UserID != userID {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return nil, false
	}
	return conv, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
