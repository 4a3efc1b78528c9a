package handlers

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/files"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const (
	uploadPreviewChars = 200
	processChars       = 2000
)

type FileHandler struct {
	Store  store.Store
	Files  *files.Service
	Logger *log.Logger
	// MaxUploadSize bounds the request body of an upload. Zero means
	// files.MaxFileSize.
	MaxUploadSize int64
}

func (h *FileHandler) maxUpload() int64 {
	if h.MaxUploadSize > 0 {
		return h.MaxUploadSize
	}
	return files.MaxFileSize
}

// Upload stores a multipart "file" field and records it as an attachment,
// optionally linked to the message named by the "message_id" field.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload()+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, files.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if err := files.Validate(header.Filename, header.Size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var messageID *int64
	if raw := r.FormValue("message_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid message id")
			return
		}
		if !h.messageOwned(w, userID, id) {
			return
		}
		messageID = &id
	}

	stored, path, err := h.Files.Save(file, header.Filename)
	if err != nil {
		if errors.Is(err, files.ErrFileTooLarge) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		internalError(w, h.Logger, "save upload", err)
		return
	}
	info, err := h.Files.Info(path, header.Filename)
	if err != nil {
		h.Files.Delete(stored)
		internalError(w, h.Logger, "stat upload", err)
		return
	}

	var preview *string
	if text, ok := h.Files.Preview(path, uploadPreviewChars); ok {
		preview = &text
	}

	att := &models.Attachment{
		MessageID:        messageID,
		Filename:         stored,
		OriginalFilename: header.Filename,
		FileType:         info.Type,
		FileSize:         info.Size,
		FilePath:         path,
		ContentPreview:   preview,
		MimeType:         info.MimeType,
		UploadStatus:     models.UploadStatusCompleted,
	}
	if err := h.Store.CreateAttachment(att); err != nil {
		h.Files.Delete(stored)
		internalError(w, h.Logger, "create attachment", err)
		return
	}
	h.Logger.Info("file uploaded", "filename", header.Filename, "size", info.SizeReadable, "attachment_id", att.ID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"attachment_id": att.ID,
		"filename":      att.OriginalFilename,
		"file_type":     att.FileType,
		"file_size":     att.FileSize,
		"size_readable": info.SizeReadable,
		"preview":       preview,
		"mime_type":     att.MimeType,
	})
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	att, ok := h.fromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, att)
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	att, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.Files.Delete(att.Filename); err != nil {
		h.Logger.Warn("failed to remove upload", "filename", att.Filename, "err", err)
	}
	if err := h.Store.DeleteAttachment(att.ID); err != nil {
		lookupError(w, h.Logger, "delete attachment", err, "File not found")
		return
	}
	h.Logger.Info("file deleted", "attachment_id", att.ID, "filename", att.OriginalFilename)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Download sends the stored bytes under the original filename.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	att, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	f, err := os.Open(att.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found on disk")
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		internalError(w, h.Logger, "stat download", err)
		return
	}

	w.Header().Set("Content-Disposition", contentDisposition(att.OriginalFilename))
	if att.MimeType != "" {
		w.Header().Set("Content-Type", att.MimeType)
	}
	http.ServeContent(w, r, att.OriginalFilename, st.ModTime(), f)
}

// ListFiles lists attachments of one message or one conversation. Without
// either filter it lists every attachment the user can see.
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var filter store.AttachmentFilter
	q := r.URL.Query()
	if raw := q.Get("message_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid message id")
			return
		}
		if !h.messageOwned(w, userID, id) {
			return
		}
		filter.MessageID = id
	} else if raw := q.Get("conversation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid conversation id")
			return
		}
		if _, ok := ownedConversation(w, h.Store, h.Logger, userID, id); !ok {
			return
		}
		filter.ConversationID = id
	}

	attachments, err := h.Store.ListAttachments(filter)
	if err != nil {
		internalError(w, h.Logger, "list attachments", err)
		return
	}
	if filter.MessageID == 0 && filter.ConversationID == 0 {
		visible := attachments[:0]
		for _, a := range attachments {
			owned, err := h.owns(userID, &a)
			if err != nil {
				internalError(w, h.Logger, "list attachments", err)
				return
			}
			if owned {
				visible = append(visible, a)
			}
		}
		attachments = visible
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": attachments})
}

// Process extracts the text of an attachment for use as prompt context.
func (h *FileHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		AttachmentID int64 `json:"attachment_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AttachmentID == 0 {
		writeError(w, http.StatusBadRequest, "attachment_id required")
		return
	}

	att, ok := h.load(w, userID, req.AttachmentID)
	if !ok {
		return
	}

	text, ok := h.Files.ExtractText(att.FilePath)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":     "Could not extract text from file",
			"file_type": att.FileType,
		})
		return
	}

	length := utf8.RuneCountInString(text)
	content := text
	if length > processChars {
		content = string([]rune(text)[:processChars])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attachment_id":  att.ID,
		"filename":       att.OriginalFilename,
		"file_type":      att.FileType,
		"content":        content,
		"content_length": length,
		"has_more":       length > processChars,
	})
}

func (h *FileHandler) fromPath(w http.ResponseWriter, r *http.Request) (*models.Attachment, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file id")
		return nil, false
	}
	return h.load(w, userID, id)
}

func (h *FileHandler) load(w http.ResponseWriter, userID, id int64) (*models.Attachment, bool) {
	att, err := h.Store.GetAttachment(id)
	if err != nil {
		lookupError(w, h.Logger, "get attachment", err, "File not found")
		return nil, false
	}
	owned, err := h.owns(userID, att)
	if err != nil {
		internalError(w, h.Logger, "get attachment", err)
		return nil, false
	}
	if !owned {
		writeError(w, http.StatusNotFound, "File not found")
		return nil, false
	}
	return att, true
}

// owns reports whether the attachment's message belongs to one of the
// user's conversations. Attachments not linked to a message are shared.
func (h *FileHandler) owns(userID int64, att *models.Attachment) (bool, error) {
	if att.MessageID == nil {
		return true, nil
	}
	msg, err := h.Store.GetMessage(*att.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	conv, err := h.Store.GetConversation(msg.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.UserID == userID, nil
}

func (h *FileHandler) messageOwned(w http.ResponseWriter, userID, messageID int64) bool {
	msg, err := h.Store.GetMessage(messageID)
	if err != nil {
		lookupError(w, h.Logger, "get message", err, "Message not found")
		return false
	}
	conv, err := h.Store.GetConversation(msg.ConversationID)
	if err != nil || conv.UserID != userID {
		writeError(w, http.StatusNotFound, "Message not found")
		return false
	}
	return true
}

func contentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
