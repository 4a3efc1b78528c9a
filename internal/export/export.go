// Package export renders a conversation as a downloadable document.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/pliu/gemchat/internal/models"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

var (
	ErrUnknownFormat  = errors.New("invalid format")
	ErrPDFUnavailable = errors.New("PDF export not available")
)

// pdfContentLimit caps the characters rendered per message in a PDF.
const pdfContentLimit = 500

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatMarkdown, FormatPDF:
		return f, nil
	case "":
		return FormatJSON, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	case FormatPDF:
		return "pdf"
	}
	return "txt"
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	}
	return "text/plain; charset=utf-8"
}

type Metadata struct {
	ExportDate     time.Time `json:"export_date"`
	ConversationID int64     `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	MessageCount   int       `json:"message_count"`
}

// Document is the JSON export layout.
type Document struct {
	Metadata Metadata         `json:"metadata"`
	Messages []models.Message `json:"messages"`
}

func JSON(conv *models.Conversation, messages []models.Message, now time.Time) ([]byte, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	doc := Document{
		Metadata: Metadata{
			ExportDate:     now,
			ConversationID: conv.ID,
			Title:          conv.Title,
			CreatedAt:      conv.CreatedAt,
			MessageCount:   len(messages),
		},
		Messages: messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// ParseJSON reads back a document produced by JSON.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	return &doc, nil
}

func Markdown(conv *models.Conversation, messages []models.Message) string {
	title := conv.Title
	if title == "" {
		title = "Conversation"
	}
	model := conv.ModelUsed
	if model == "" {
		model = "Unknown"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Created:** %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Model:** %s\n", model)
	fmt.Fprintf(&sb, "**Messages:** %d\n\n", len(messages))
	sb.WriteString("---\n\n")

	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&sb, "## %s\n", strings.ToUpper(role))
		fmt.Fprintf(&sb, "*%s*\n\n", msg.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "%s\n\n", msg.Content)
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// PDF renders a Letter-sized document. Characters outside cp1252 are
// replaced by the core font translator.
func PDF(conv *models.Conversation, messages []models.Message) ([]byte, error) {
	title := conv.Title
	if title == "" {
		title = "Conversation"
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(19, 19, 19)
	pdf.SetAutoPageBreak(true, 19)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(15, 23, 42)
	pdf.MultiCell(0, 11, tr(title), "", "C", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 116, 139)
	meta := fmt.Sprintf("Created: %s | Model: %s", conv.CreatedAt.Format(time.RFC3339), conv.ModelUsed)
	pdf.MultiCell(0, 5, tr(meta), "", "L", false)
	pdf.Ln(6)

	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			pdf.SetTextColor(37, 99, 235)
		} else {
			pdf.SetTextColor(5, 150, 105)
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr(strings.ToUpper(msg.Role)), "", "L", false)

		pdf.SetTextColor(15, 23, 42)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(truncateRunes(msg.Content, pdfContentLimit)), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFUnavailable, err)
	}
	return buf.Bytes(), nil
}

// Render produces the document bytes for f.
func Render(conv *models.Conversation, messages []models.Message, f Format, now time.Time) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(conv, messages, now)
	case FormatMarkdown:
		return []byte(Markdown(conv, messages)), nil
	case FormatPDF:
		return PDF(conv, messages)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// Filename builds a download name from the title, keeping letters, digits,
// spaces, dashes and underscores.
func Filename(title string, f Format, now time.Time) string {
	var sb strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	safe := truncateRunes(strings.TrimSpace(sb.String()), 50)
	if safe == "" {
		safe = "conversation"
	}
	return fmt.Sprintf("%s_%s.%s", safe, now.Format("20060102_150405"), f.Extension())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
