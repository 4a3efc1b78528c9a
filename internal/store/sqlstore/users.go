package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const (
	defaultUsername = "default"
	defaultEmail    = "default@localhost"
)

const userColumns = "id, username, email, COALESCE(api_key, ''), COALESCE(theme_preference, 'dark'), COALESCE(preferred_model, ''), created_at, updated_at"

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.APIKey, &u.ThemePreference, &u.PreferredModel, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *SQLStore) CreateUser(user *models.User) error {
	if user.ThemePreference == "" {
		user.ThemePreference = models.DefaultTheme
	}
	if user.PreferredModel == "" {
		user.PreferredModel = models.DefaultModel
	}
	if user.Email == "" {
		user.Email = user.Username + "@localhost"
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now

	query := s.rebind("INSERT INTO users (username, email, api_key, theme_preference, preferred_model, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRow(query, user.Username, user.Email, user.APIKey, user.ThemePreference, user.PreferredModel, now, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByID(id int64) (*models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	return scanUser(s.db.QueryRow(query, id))
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE username = ?")
	return scanUser(s.db.QueryRow(query, username))
}

// EnsureDefaultUser returns the user that owns requests made without a
// session cookie, creating it on first use.
func (s *SQLStore) EnsureDefaultUser() (*models.User, error) {
	user, err := s.GetUserByUsername(defaultUsername)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	user = &models.User{Username: defaultUsername, Email: defaultEmail}
	if err := s.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLStore) UpdateUserPreferences(id int64, theme, model string) error {
	query := s.rebind("UPDATE users SET theme_preference = ?, preferred_model = ?, updated_at = ? WHERE id = ?")
	return s.execOne(query, "update user preferences", theme, model, s.now(), id)
}

func (s *SQLStore) SetUserAPIKey(id int64, sealed string) error {
	query := s.rebind("UPDATE users SET api_key = ?, updated_at = ? WHERE id = ?")
	return s.execOne(query, "set user api key", sealed, s.now(), id)
}

// DeleteUser removes the user together with every conversation, message and
// attachment it owns.
func (s *SQLStore) DeleteUser(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM attachments WHERE message_id IN (
				SELECT m.id FROM messages m JOIN conversations c ON m.conversation_id = c.id WHERE c.user_id = ?)`,
			"DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE user_id = ?)",
			"DELETE FROM conversations WHERE user_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(s.rebind(stmt), id); err != nil {
				return fmt.Errorf("failed to delete user data: %w", err)
			}
		}

		result, err := tx.Exec(s.rebind("DELETE FROM users WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return requireRows(result)
	})
}

// execOne executes a single-row write and reports ErrNotFound when nothing
// matched.
func (s *SQLStore) execOne(query, action string, args ...any) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return requireRows(result)
}

func requireRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
