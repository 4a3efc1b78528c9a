// Package files stores uploads and pulls text out of them.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const timestampLayout = "20060102_150405_"

// Info describes a stored upload.
type Info struct {
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	SizeReadable string    `json:"size_readable"`
	Type         string    `json:"type"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type Service struct {
	dir    string
	logger *log.Logger
	now    func() time.Time
}

// NewService creates the upload directory if needed.
func NewService(dir string, logger *log.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %w", err)
	}
	logger.Info("file service ready", "upload_folder", dir)
	return &Service{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir is the upload directory.
func (s *Service) Dir() string {
	return s.dir
}

// Path returns the on-disk path of a stored file name.
func (s *Service) Path(stored string) string {
	return filepath.Join(s.dir, filepath.Base(stored))
}

// Save writes r under a sanitized, timestamp-prefixed name and returns the
// stored name and its path. Existing files are never overwritten.
func (s *Service) Save(r io.Reader, originalName string) (string, string, error) {
	safe := SanitizeFilename(originalName)
	stored := s.now().Format(timestampLayout) + safe

	f, err := os.OpenFile(s.Path(stored), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		stored = s.now().Format(timestampLayout) + uuid.NewString()[:8] + "_" + safe
		f, err = os.OpenFile(s.Path(stored), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxFileSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	s.logger.Info("file saved", "filename", stored, "size", n)
	return stored, path, nil
}

// Delete removes a stored file. It reports false when the file did not
// exist.
func (s *Service) Delete(stored string) (bool, error) {
	err := os.Remove(s.Path(stored))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	s.logger.Info("file deleted", "filename", stored)
	return true, nil
}

func (s *Service) Info(path, originalName string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat file: %w", err)
	}
	ext := Extension(path)
	return Info{
		Filename:     originalName,
		Size:         st.Size(),
		SizeReadable: FormatSize(st.Size()),
		Type:         ext,
		MimeType:     MimeType(ext),
		UploadedAt:   st.ModTime(),
	}, nil
}

// FormatSize renders a byte count like "1.50 MB".
func FormatSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f TB", size)
}
