package store

import (
	"errors"
	"time"

	"github.com/pliu/gemchat/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ListOptions controls conversation listing.
type ListOptions struct {
	FavoriteOnly bool
	SortBy       string // created_at, updated_at, title, total_tokens
	Order        string // asc or desc
}

// AttachmentFilter narrows ListAttachments. MessageID wins over
// ConversationID when both are set; neither set lists everything.
type AttachmentFilter struct {
	MessageID      int64
	ConversationID int64
}

type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByID(id int64) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	EnsureDefaultUser() (*models.User, error)
	UpdateUserPreferences(id int64, theme, model string) error
	SetUserAPIKey(id int64, sealed string) error
	DeleteUser(id int64) error

	// Conversation operations
	CreateConversation(conv *models.Conversation) error
	GetConversation(id int64) (*models.Conversation, error)
	ListConversations(userID int64, opts ListOptions) ([]models.Conversation, error)
	UpdateConversation(conv *models.Conversation) error
	DeleteConversation(id int64) error
	SearchConversations(userID int64, query string) ([]models.ConversationMatch, error)

	// Message operations
	CreateMessage(msg *models.Message) error
	GetMessage(id int64) (*models.Message, error)
	GetConversationMessages(conversationID int64) ([]models.Message, error)
	MarkMessageSearched(id int64, query string) error
	EditMessage(id int64, content string) (*models.Message, int64, error)
	DeleteMessageAndAfter(id int64) (int64, error)
	SaveAssistantResponse(conversationID int64, content string, tokens int, cost float64) (*models.Message, error)

	// Attachment operations
	CreateAttachment(att *models.Attachment) error
	GetAttachment(id int64) (*models.Attachment, error)
	ListAttachments(filter AttachmentFilter) ([]models.Attachment, error)
	DeleteAttachment(id int64) error

	// Search cache operations
	GetCachedSearch(query, source string, now time.Time) (*models.SearchResultCache, error)
	PutCachedSearch(entry *models.SearchResultCache) error
	PruneSearchCache(now time.Time) (int64, error)

	Close() error
}
