package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pliu/gemchat/internal/models"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleConversation() (*models.Conversation, []models.Message) {
	conv := &models.Conversation{
		ID:        7,
		Title:     "Weather plans",
		ModelUsed: "gemini-2.5-flash",
		CreatedAt: testTime,
	}
	messages := []models.Message{
		{ID: 1, ConversationID: 7, Role: models.RoleUser, Content: "Will it rain?", CreatedAt: testTime},
		{ID: 2, ConversationID: 7, Role: models.RoleAssistant, Content: "Probably not.", TokensUsed: 12, CreatedAt: testTime.Add(time.Second)},
	}
	return conv, messages
}

func TestJSONRoundTrip(t *testing.T) {
	conv, messages := sampleConversation()

	data, err := JSON(conv, messages, testTime)
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	doc, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	if doc.Metadata.MessageCount != 2 || len(doc.Messages) != 2 {
		t.Fatalf("expected 2 messages, got count=%d len=%d", doc.Metadata.MessageCount, len(doc.Messages))
	}
	if doc.Metadata.ConversationID != 7 || doc.Metadata.Title != "Weather plans" {
		t.Errorf("unexpected metadata: %+v", doc.Metadata)
	}
	for i := range messages {
		if doc.Messages[i].Content != messages[i].Content || doc.Messages[i].Role != messages[i].Role {
			t.Errorf("message %d mismatch: got %+v", i, doc.Messages[i])
		}
	}
}

func TestJSONEmptyConversation(t *testing.T) {
	conv, _ := sampleConversation()
	data, err := JSON(conv, nil, testTime)
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"messages": []`)) {
		t.Errorf("expected empty messages array, got %s", data)
	}
}

func TestParseJSONInvalid(t *testing.T) {
	if _, err := ParseJSON([]byte("{")); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestMarkdown(t *testing.T) {
	conv, messages := sampleConversation()
	md := Markdown(conv, messages)

	for _, want := range []string{
		"# Weather plans\n",
		"**Model:** gemini-2.5-flash\n",
		"**Messages:** 2\n",
		"## USER\n",
		"## ASSISTANT\n",
		"Will it rain?\n",
		"*2025-03-14T09:26:53Z*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if got := strings.Count(md, "---\n"); got != 3 {
		t.Errorf("expected 3 separators, got %d", got)
	}
}

func TestMarkdownDefaults(t *testing.T) {
	md := Markdown(&models.Conversation{}, nil)
	if !strings.HasPrefix(md, "# Conversation\n") {
		t.Errorf("unexpected title line: %q", md)
	}
	if !strings.Contains(md, "**Model:** Unknown") {
		t.Errorf("expected Unknown model, got %q", md)
	}
}

func TestPDF(t *testing.T) {
	conv, messages := sampleConversation()
	messages = append(messages, models.Message{Role: models.RoleAssistant, Content: strings.Repeat("long ", 400)})

	data, err := PDF(conv, messages)
	if err != nil {
		t.Fatalf("PDF failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatJSON,
		"json":     FormatJSON,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		"PDF":      FormatPDF,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFilename(t *testing.T) {
	got := Filename("Trip: Paris/Rome?", FormatMarkdown, testTime)
	if got != "Trip ParisRome_20250314_092653.md" {
		t.Errorf("unexpected filename %q", got)
	}

	got = Filename(strings.Repeat("a", 80), FormatPDF, testTime)
	if got != strings.Repeat("a", 50)+"_20250314_092653.pdf" {
		t.Errorf("title not truncated: %q", got)
	}

	if got := Filename("???", FormatJSON, testTime); got != "conversation_20250314_092653.json" {
		t.Errorf("unexpected fallback %q", got)
	}
}

func TestRender(t *testing.T) {
	conv, messages := sampleConversation()

	md, err := Render(conv, messages, FormatMarkdown, testTime)
	if err != nil || !strings.HasPrefix(string(md), "# Weather plans") {
		t.Errorf("Render markdown = %q, %v", md, err)
	}
	pdf, err := Render(conv, messages, FormatPDF, testTime)
	if err != nil || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Errorf("Render pdf failed: %v", err)
	}
	if _, err := Render(conv, messages, Format("docx"), testTime); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
}
