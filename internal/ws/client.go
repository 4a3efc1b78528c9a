package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/middleware"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
	"github.com/pliu/gemchat/internal/util"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBuffer = 16
)

// DefaultRetry retries a degraded answer twice, waiting 1s and then 2s.
var DefaultRetry = util.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 4 * time.Second}

// Client is one websocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64
}

// Incoming is a frame sent by the browser.
type Incoming struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id"`
	Model          string `json:"model"`
}

// Handler upgrades requests to websockets and answers send_message frames.
type Handler struct {
	Hub       *Hub
	Responder ai.Responder
	// Store is optional; when set, a frame naming one of the user's
	// conversations is answered with that conversation's history.
	Store  store.Store
	Retry  util.Policy
	Logger *log.Logger
	// CheckOrigin defaults to same-origin.
	CheckOrigin func(r *http.Request) bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok || userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.Logger.Warn("ws: upgrade failed", "err", err)
		return
	}

	client := &Client{hub: h.Hub, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	// Answers in flight are abandoned once the connection goes away.
	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump()
	go h.readPump(ctx, cancel, client)
}

// readPump reads frames until the connection fails and starts one answer
// goroutine per send_message so a slow upstream never blocks the reader.
func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, c *Client) {
	defer func() {
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Warn("ws: read failed", "user_id", c.userID, "err", err)
			}
			return
		}

		var in Incoming
		if err := json.Unmarshal(data, &in); err != nil {
			h.Hub.Send(c, errorEvent("Invalid message format"))
			continue
		}
		switch in.Type {
		case "send_message":
			go h.answer(ctx, c, in)
		default:
			h.Hub.Send(c, errorEvent("Unknown event: "+in.Type))
		}
	}
}

// answer asks the responder, retrying while it returns the degraded
// fallback text, and sends either new_message or message_error.
func (h *Handler) answer(ctx context.Context, c *Client, in Incoming) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		h.Hub.Send(c, errorEvent("Message cannot be empty"))
		return
	}
	model := in.Model
	if model == "" {
		model = ai.DefaultModel
	}
	req := ai.Request{Prompt: text, Model: model, History: h.history(c.userID, in.ConversationID)}

	var (
		reply  string
		tokens int
	)
	attempts := h.Retry.Do(ctx, func(attempt int) bool {
		reply, tokens = h.Responder.GetResponse(ctx, req)
		if ai.IsFallbackText(reply) {
			h.Logger.Warn("ws: degraded answer", "user_id", c.userID, "attempt", attempt)
			return false
		}
		return true
	})
	if ctx.Err() != nil {
		return
	}
	if ai.IsFallbackText(reply) {
		h.Logger.Error("ws: all retry attempts failed", "user_id", c.userID, "attempts", attempts)
		h.Hub.Send(c, errorEvent(reply))
		return
	}

	h.Hub.Send(c, Event{Type: EventNewMessage, Data: map[string]any{
		"role":    "ai",
		"content": reply,
		"tokens":  tokens,
	}})
}

func (h *Handler) history(userID, conversationID int64) []ai.Turn {
	if h.Store == nil || conversationID == 0 {
		return nil
	}
	conv, err := h.Store.GetConversation(conversationID)
	if err != nil || conv.UserID != userID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.Logger.Warn("ws: failed to load conversation", "conversation_id", conversationID, "err", err)
		}
		return nil
	}
	messages, err := h.Store.GetConversationMessages(conversationID)
	if err != nil {
		h.Logger.Warn("ws: failed to load history", "conversation_id", conversationID, "err", err)
		return nil
	}
	turns := make([]ai.Turn, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
		}
	}
	return turns
}

func errorEvent(msg string) Event {
	return Event{Type: EventMessageError, Data: map[string]string{"message": msg}}
}

// writePump forwards queued frames to the connection and keeps it alive
// with pings. It exits when the hub closes the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
