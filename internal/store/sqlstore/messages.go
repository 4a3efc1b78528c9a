package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const messageColumns = "id, conversation_id, role, content, tokens_used, is_edited, has_search, COALESCE(search_query, ''), created_at, updated_at"

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TokensUsed, &m.IsEdited, &m.HasSearch, &m.SearchQuery, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// CreateMessage inserts msg and bumps the conversation's updated_at.
func (s *SQLStore) CreateMessage(msg *models.Message) error {
	now := s.now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	return s.withTx(func(tx *sql.Tx) error {
		return s.insertMessage(tx, msg)
	})
}

func (s *SQLStore) insertMessage(tx *sql.Tx, msg *models.Message) error {
	query := s.rebind(`INSERT INTO messages
		(conversation_id, role, content, tokens_used, is_edited, has_search, search_query, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := tx.QueryRow(query,
		msg.ConversationID, msg.Role, msg.Content, msg.TokensUsed, msg.IsEdited, msg.HasSearch, msg.SearchQuery,
		msg.CreatedAt, msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return s.touchConversation(tx, msg.ConversationID, msg.CreatedAt)
}

func (s *SQLStore) GetMessage(id int64) (*models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE id = ?")
	return scanMessage(s.db.QueryRow(query, id))
}

// GetConversationMessages returns the conversation's messages in insertion
// order with their attachments filled in.
func (s *SQLStore) GetConversationMessages(conversationID int64) ([]models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE conversation_id = ? ORDER BY id ASC")
	rows, err := s.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := []models.Message{}
	index := map[int64]int{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		index[m.ID] = len(messages)
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before the next query; sqlite runs on a single connection.
	rows.Close()

	if len(messages) == 0 {
		return messages, nil
	}
	attachments, err := s.ListAttachments(store.AttachmentFilter{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if a.MessageID == nil {
			continue
		}
		if i, ok := index[*a.MessageID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, a)
		}
	}
	return messages, nil
}

func (s *SQLStore) MarkMessageSearched(id int64, query string) error {
	q := s.rebind("UPDATE messages SET has_search = ?, search_query = ?, updated_at = ? WHERE id = ?")
	return s.execOne(q, "mark message searched", true, query, s.now(), id)
}

// EditMessage replaces the content of a message, flags it edited and drops
// every later message of the same conversation. It returns the updated
// message and how many later messages were removed.
func (s *SQLStore) EditMessage(id int64, content string) (*models.Message, int64, error) {
	var (
		msg     *models.Message
		removed int64
	)
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRow(s.rebind("SELECT "+messageColumns+" FROM messages WHERE id = ?"), id))
		if err != nil {
			return err
		}

		now := s.now()
		query := s.rebind("UPDATE messages SET content = ?, is_edited = ?, updated_at = ? WHERE id = ?")
		if _, err := tx.Exec(query, content, true, now, id); err != nil {
			return fmt.Errorf("failed to edit message: %w", err)
		}
		msg.Content, msg.IsEdited, msg.UpdatedAt = content, true, now

		removed, err = s.deleteFrom(tx, msg.ConversationID, id, false)
		if err != nil {
			return err
		}
		return s.touchConversation(tx, msg.ConversationID, now)
	})
	if err != nil {
		return nil, 0, err
	}
	return msg, removed, nil
}

// DeleteMessageAndAfter removes the message and every later message of the
// same conversation, returning the number of messages removed.
func (s *SQLStore) DeleteMessageAndAfter(id int64) (int64, error) {
	var removed int64
	err := s.withTx(func(tx *sql.Tx) error {
		var conversationID int64
		err := tx.QueryRow(s.rebind("SELECT conversation_id FROM messages WHERE id = ?"), id).Scan(&conversationID)
		if err != nil {
			return notFound(err)
		}

		removed, err = s.deleteFrom(tx, conversationID, id, true)
		if err != nil {
			return err
		}
		return s.touchConversation(tx, conversationID, s.now())
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// deleteFrom deletes the messages of a conversation positioned after id, or
// at and after id when inclusive is set, along with their attachments.
func (s *SQLStore) deleteFrom(tx *sql.Tx, conversationID, id int64, inclusive bool) (int64, error) {
	op := ">"
	if inclusive {
		op = ">="
	}

	query := s.rebind("DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ? AND id " + op + " ?)")
	if _, err := tx.Exec(query, conversationID, id); err != nil {
		return 0, fmt.Errorf("failed to delete attachments: %w", err)
	}

	query = s.rebind("DELETE FROM messages WHERE conversation_id = ? AND id " + op + " ?")
	result, err := tx.Exec(query, conversationID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) touchConversation(tx *sql.Tx, conversationID int64, now time.Time) error {
	query := s.rebind("UPDATE conversations SET updated_at = ? WHERE id = ?")
	if _, err := tx.Exec(query, now, conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// SaveAssistantResponse records the assistant's reply and adds its token
// count and cost to the conversation totals.
func (s *SQLStore) SaveAssistantResponse(conversationID int64, content string, tokens int, cost float64) (*models.Message, error) {
	now := s.now()
	msg := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		TokensUsed:     tokens,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.withTx(func(tx *sql.Tx) error {
		query := s.rebind("UPDATE conversations SET total_tokens = total_tokens + ?, total_cost = total_cost + ?, updated_at = ? WHERE id = ?")
		result, err := tx.Exec(query, tokens, cost, now, conversationID)
		if err != nil {
			return fmt.Errorf("failed to update conversation totals: %w", err)
		}
		if err := requireRows(result); err != nil {
			return err
		}
		return s.insertMessage(tx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
