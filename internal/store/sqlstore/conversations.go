package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const previewLength = 100

const conversationColumns = `c.id, c.user_id, COALESCE(c.title, ''), COALESCE(c.description, ''), COALESCE(c.model_used, ''),
	c.is_active, c.is_favorite, c.is_archived, c.total_tokens, c.total_cost, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)`

var sortColumns = map[string]string{
	"created_at":   "c.created_at",
	"updated_at":   "c.updated_at",
	"title":        "c.title",
	"total_tokens": "c.total_tokens",
}

func scanConversation(row scanner, extra ...any) (*models.Conversation, error) {
	var c models.Conversation
	dest := []any{
		&c.ID, &c.UserID, &c.Title, &c.Description, &c.ModelUsed,
		&c.IsActive, &c.IsFavorite, &c.IsArchived, &c.TotalTokens, &c.TotalCost, &c.CreatedAt, &c.UpdatedAt,
		&c.MessageCount,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *SQLStore) CreateConversation(conv *models.Conversation) error {
	if conv.Title == "" {
		conv.Title = models.DefaultConversationTitle
	}
	if conv.ModelUsed == "" {
		conv.ModelUsed = models.DefaultModel
	}
	conv.IsActive = true
	now := s.now()
	conv.CreatedAt, conv.UpdatedAt = now, now

	query := s.rebind(`INSERT INTO conversations
		(user_id, title, description, model_used, is_active, is_favorite, is_archived, total_tokens, total_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRow(query,
		conv.UserID, conv.Title, conv.Description, conv.ModelUsed,
		conv.IsActive, conv.IsFavorite, conv.IsArchived, conv.TotalTokens, conv.TotalCost, now, now,
	).Scan(&conv.ID)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) GetConversation(id int64) (*models.Conversation, error) {
	query := s.rebind("SELECT " + conversationColumns + " FROM conversations c WHERE c.id = ?")
	return scanConversation(s.db.QueryRow(query, id))
}

func (s *SQLStore) ListConversations(userID int64, opts store.ListOptions) ([]models.Conversation, error) {
	sortColumn, ok := sortColumns[opts.SortBy]
	if !ok {
		sortColumn = sortColumns["updated_at"]
	}
	order := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		order = "ASC"
	}

	query := "SELECT " + conversationColumns + `,
		COALESCE((SELECT m.content FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id DESC LIMIT 1), '')
		FROM conversations c WHERE c.user_id = ?`
	args := []any{userID}
	if opts.FavoriteOnly {
		query += " AND c.is_favorite = ?"
		args = append(args, true)
	}
	query += fmt.Sprintf(" ORDER BY %s %s, c.id %s", sortColumn, order, order)

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var preview string
		c, err := scanConversation(rows, &preview)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.Preview = truncateRunes(preview, previewLength)
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// UpdateConversation writes the mutable metadata of conv back to the row.
func (s *SQLStore) UpdateConversation(conv *models.Conversation) error {
	conv.UpdatedAt = s.now()
	query := s.rebind(`UPDATE conversations
		SET title = ?, description = ?, is_active = ?, is_favorite = ?, is_archived = ?, updated_at = ?
		WHERE id = ?`)
	return s.execOne(query, "update conversation",
		conv.Title, conv.Description, conv.IsActive, conv.IsFavorite, conv.IsArchived, conv.UpdatedAt, conv.ID)
}

// DeleteConversation removes the conversation, its messages and their
// attachments.
func (s *SQLStore) DeleteConversation(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		// Delete children first (foreign key constraint)
		query := s.rebind("DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)")
		if _, err := tx.Exec(query, id); err != nil {
			return fmt.Errorf("failed to delete attachments: %w", err)
		}

		query = s.rebind("DELETE FROM messages WHERE conversation_id = ?")
		if _, err := tx.Exec(query, id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		result, err := tx.Exec(s.rebind("DELETE FROM conversations WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return requireRows(result)
	})
}

// SearchConversations finds the user's conversations whose title or any
// message contains query, ignoring case.
func (s *SQLStore) SearchConversations(userID int64, query string) ([]models.ConversationMatch, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	q := s.rebind("SELECT " + conversationColumns + `,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND LOWER(m.content) LIKE ?)
		FROM conversations c
		WHERE c.user_id = ? AND (LOWER(c.title) LIKE ? OR EXISTS (
			SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND LOWER(m.content) LIKE ?))
		ORDER BY c.updated_at DESC, c.id DESC`)

	rows, err := s.db.Query(q, pattern, userID, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	defer rows.Close()

	matches := []models.ConversationMatch{}
	for rows.Next() {
		var count int
		c, err := scanConversation(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		matches = append(matches, models.ConversationMatch{Conversation: *c, MatchingMessages: count})
	}
	return matches, rows.Err()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
