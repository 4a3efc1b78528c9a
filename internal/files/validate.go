package files

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 50 * 1024 * 1024

// AllowedExtensions maps accepted extensions to their MIME types.
var AllowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"md":   "text/markdown",
	"json": "application/json",
}

var (
	ErrNoFilename     = errors.New("no filename provided")
	ErrFileTooLarge   = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
)

// Validate checks an upload's name and size before anything is written.
func Validate(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return ErrNoFilename
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w. Maximum size: %dMB", ErrFileTooLarge, MaxFileSize/1024/1024)
	}
	if _, ok := AllowedExtensions[Extension(filename)]; !ok {
		return fmt.Errorf("%w. Allowed: %s", ErrTypeNotAllowed, strings.Join(allowedList(), ", "))
	}
	return nil
}

// Extension returns the lower-cased extension without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func MimeType(ext string) string {
	if m, ok := AllowedExtensions[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

func allowedList() []string {
	out := make([]string, 0, len(AllowedExtensions))
	for ext := range AllowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces name to a safe ASCII base name, keeping its
// extension. Accents are folded away; anything else outside
// [A-Za-z0-9_.-] is dropped.
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	ext := Extension(name)
	base := strings.TrimSuffix(name, filepath.Ext(name))

	base = clean(base)
	if base == "" {
		base = "file"
	}
	if ext = clean(ext); ext == "" {
		return base
	}
	return base + "." + ext
}

func clean(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	s = strings.Join(strings.Fields(b.String()), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}
