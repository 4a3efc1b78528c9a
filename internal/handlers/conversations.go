package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/export"
	"github.com/pliu/gemchat/internal/files"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

type ConversationHandler struct {
	Store  store.Store
	Files  *files.Service // optional; removes uploads of deleted conversations
	Logger *log.Logger
	Now    func() time.Time
}

func (h *ConversationHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	favorite, _ := strconv.ParseBool(q.Get("favorite"))
	opts := store.ListOptions{
		FavoriteOnly: favorite,
		SortBy:       q.Get("sort_by"),
		Order:        q.Get("order"),
	}

	conversations, err := h.Store.ListConversations(userID, opts)
	if err != nil {
		internalError(w, h.Logger, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// GetConversation returns the conversation with its messages.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	messages, err := h.Store.GetConversationMessages(conv.ID)
	if err != nil {
		internalError(w, h.Logger, "get messages", err)
		return
	}
	conv.Messages = messages
	writeJSON(w, http.StatusOK, conv)
}

type CreateConversationRequest struct {
	Title       string `json:"title"`
	Model       string `json:"model"`
	Description string `json:"description"`
}

func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Model == "" {
		req.Model = ai.DefaultModel
	}

	conv := &models.Conversation{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		ModelUsed:   req.Model,
		Description: req.Description,
	}
	if err := h.Store.CreateConversation(conv); err != nil {
		internalError(w, h.Logger, "create conversation", err)
		return
	}
	h.Logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)

	writeJSON(w, http.StatusCreated, conv)
}

// UpdateConversationRequest carries only the fields being changed.
type UpdateConversationRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsFavorite  *bool   `json:"is_favorite"`
	IsArchived  *bool   `json:"is_archived"`
}

func (h *ConversationHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Description != nil {
		conv.Description = *req.Description
	}
	if req.IsFavorite != nil {
		conv.IsFavorite = *req.IsFavorite
	}
	if req.IsArchived != nil {
		conv.IsArchived = *req.IsArchived
	}

	if err := h.Store.UpdateConversation(conv); err != nil {
		lookupError(w, h.Logger, "update conversation", err, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DeleteConversation removes the conversation with its messages and
// attachments, then the uploaded files behind those attachments.
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	var attachments []models.Attachment
	if h.Files != nil {
		var err error
		attachments, err = h.Store.ListAttachments(store.AttachmentFilter{ConversationID: conv.ID})
		if err != nil {
			internalError(w, h.Logger, "list attachments", err)
			return
		}
	}

	if err := h.Store.DeleteConversation(conv.ID); err != nil {
		lookupError(w, h.Logger, "delete conversation", err, "Conversation not found")
		return
	}
	for _, a := range attachments {
		if _, err := h.Files.Delete(a.Filename); err != nil {
			h.Logger.Warn("failed to remove upload", "filename", a.Filename, "err", err)
		}
	}
	h.Logger.Info("conversation deleted", "conversation_id", conv.ID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ExportConversation renders the conversation as json, markdown or pdf.
// Text formats come back wrapped in JSON; PDF is sent as a file.
func (h *ConversationHandler) ExportConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.fromPath(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid format")
		return
	}

	messages, err := h.Store.GetConversationMessages(conv.ID)
	if err != nil {
		internalError(w, h.Logger, "get messages", err)
		return
	}
	now := h.now()
	filename := export.Filename(conv.Title, format, now)

	data, err := export.Render(conv, messages, format, now)
	if err != nil {
		if errors.Is(err, export.ErrPDFUnavailable) {
			h.Logger.Error("pdf export failed", "conversation_id", conv.ID, "err", err)
			writeError(w, http.StatusServiceUnavailable, "PDF export not available")
			return
		}
		internalError(w, h.Logger, "export "+string(format), err)
		return
	}
	if format == export.FormatPDF {
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", contentDisposition(filename))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	h.Logger.Info("conversation exported", "conversation_id", conv.ID, "format", format)
	writeJSON(w, http.StatusOK, map[string]string{
		"filename": filename,
		"content":  string(data),
		"format":   string(format),
	})
}

func (h *ConversationHandler) SearchConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query required")
		return
	}

	results, err := h.Store.SearchConversations(userID, query)
	if err != nil {
		internalError(w, h.Logger, "search conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *ConversationHandler) fromPath(w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return nil, false
	}
	return ownedConversation(w, h.Store, h.Logger, userID, id)
}
