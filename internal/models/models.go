package models

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	UploadStatusUploading = "uploading"
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
)

const (
	DefaultTheme             = "dark"
	DefaultModel             = "gemini-2.5-flash"
	DefaultConversationTitle = "New Conversation"
)

type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	APIKey          string    `json:"-"` // sealed with auth.Sealer
	ThemePreference string    `json:"theme_preference"`
	PreferredModel  string    `json:"preferred_model"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasAPIKey reports whether the user stored their own upstream key.
func (u *User) HasAPIKey() bool {
	return u.APIKey != ""
}

type Conversation struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ModelUsed    string    `json:"model_used"`
	IsActive     bool      `json:"is_active"`
	IsFavorite   bool      `json:"is_favorite"`
	IsArchived   bool      `json:"is_archived"`
	TotalTokens  int       `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
}

// ConversationMatch is a conversation hit from a title/content search.
type ConversationMatch struct {
	Conversation
	MatchingMessages int `json:"matching_messages"`
}

type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	TokensUsed     int          `json:"tokens_used"`
	IsEdited       bool         `json:"is_edited"`
	HasSearch      bool         `json:"has_search"`
	SearchQuery    string       `json:"search_query,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	ID               int64     `json:"id"`
	MessageID        *int64    `json:"message_id"`
	Filename         string    `json:"-"` // stored name inside the upload directory
	OriginalFilename string    `json:"filename"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	FilePath         string    `json:"-"`
	ContentPreview   *string   `json:"content_preview"`
	MimeType         string    `json:"mime_type"`
	UploadStatus     string    `json:"upload_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// SearchResultCache holds a raw search provider payload until ExpiresAt.
type SearchResultCache struct {
	ID         int64           `json:"id"`
	Query      string          `json:"query"`
	ResultData json.RawMessage `json:"result_data"`
	Source     string          `json:"source"`
	CachedAt   time.Time       `json:"cached_at"`
	ExpiresAt  *time.Time      `json:"expires_at"`
}

// Expired reports whether the entry is stale at now. Entries without an
// expiry never expire.
func (c *SearchResultCache) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
