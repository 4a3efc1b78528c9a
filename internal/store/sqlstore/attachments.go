package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const attachmentColumns = `a.id, a.message_id, a.filename, a.original_filename, a.file_type, a.file_size, a.file_path,
	a.content_preview, a.mime_type, COALESCE(a.upload_status, 'completed'), a.created_at`

func scanAttachment(row scanner) (*models.Attachment, error) {
	var (
		a         models.Attachment
		messageID sql.NullInt64
		preview   sql.NullString
	)
	err := row.Scan(&a.ID, &messageID, &a.Filename, &a.OriginalFilename, &a.FileType, &a.FileSize, &a.FilePath,
		&preview, &a.MimeType, &a.UploadStatus, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if messageID.Valid {
		a.MessageID = &messageID.Int64
	}
	if preview.Valid {
		a.ContentPreview = &preview.String
	}
	return &a, nil
}

func (s *SQLStore) CreateAttachment(att *models.Attachment) error {
	if att.UploadStatus == "" {
		att.UploadStatus = models.UploadStatusCompleted
	}
	att.CreatedAt = s.now()

	query := s.rebind(`INSERT INTO attachments
		(message_id, filename, original_filename, file_type, file_size, file_path, content_preview, mime_type, upload_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRow(query,
		att.MessageID, att.Filename, att.OriginalFilename, att.FileType, att.FileSize, att.FilePath,
		att.ContentPreview, att.MimeType, att.UploadStatus, att.CreatedAt,
	).Scan(&att.ID)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAttachment(id int64) (*models.Attachment, error) {
	query := s.rebind("SELECT " + attachmentColumns + " FROM attachments a WHERE a.id = ?")
	return scanAttachment(s.db.QueryRow(query, id))
}

func (s *SQLStore) ListAttachments(filter store.AttachmentFilter) ([]models.Attachment, error) {
	query := "SELECT " + attachmentColumns + " FROM attachments a"
	var args []any
	switch {
	case filter.MessageID != 0:
		query += " WHERE a.message_id = ?"
		args = append(args, filter.MessageID)
	case filter.ConversationID != 0:
		query += " JOIN messages m ON a.message_id = m.id WHERE m.conversation_id = ?"
		args = append(args, filter.ConversationID)
	}
	query += " ORDER BY a.id ASC"

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, *a)
	}
	return attachments, rows.Err()
}

func (s *SQLStore) DeleteAttachment(id int64) error {
	return s.execOne(s.rebind("DELETE FROM attachments WHERE id = ?"), "delete attachment", id)
}
