package sqlstore

import (
	"errors"
	"testing"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

func TestCreateAndGetMessages(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	msgs := seedMessages(t, conv.ID, "Hello", "Hi!")
	seedAttachment(t, msgs[0].ID, "a.txt")

	messages, err := testStore.GetConversationMessages(conv.ID)
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "Hello" || messages[0].Role != models.RoleUser {
		t.Errorf("Unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != models.RoleAssistant {
		t.Errorf("Expected assistant second, got %q", messages[1].Role)
	}
	if len(messages[0].Attachments) != 1 || messages[0].Attachments[0].OriginalFilename != "a.txt" {
		t.Errorf("Expected attachment on first message, got %+v", messages[0].Attachments)
	}
	if len(messages[1].Attachments) != 0 {
		t.Errorf("Expected no attachment on second message")
	}

	if _, err := testStore.GetMessage(9999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMarkMessageSearched(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	msgs := seedMessages(t, conv.ID, "weather in Paris")

	if err := testStore.MarkMessageSearched(msgs[0].ID, "weather in Paris"); err != nil {
		t.Fatalf("MarkMessageSearched failed: %v", err)
	}
	got, _ := testStore.GetMessage(msgs[0].ID)
	if !got.HasSearch || got.SearchQuery != "weather in Paris" {
		t.Errorf("Search metadata not stored: %+v", got)
	}
}

func TestEditMessageRemovesOnlyLaterMessages(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	other := seedConversation(t, user.ID, "Other")

	msgs := seedMessages(t, conv.ID, "m1", "m2", "m3", "m4", "m5")
	otherMsgs := seedMessages(t, other.ID, "o1", "o2")
	att := seedAttachment(t, msgs[3].ID, "later.txt")

	edited, removed, err := testStore.EditMessage(msgs[1].ID, "m2 edited")
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 later messages removed, got %d", removed)
	}
	if edited.Content != "m2 edited" || !edited.IsEdited {
		t.Errorf("Unexpected edited message: %+v", edited)
	}

	remaining, _ := testStore.GetConversationMessages(conv.ID)
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 remaining messages, got %d", len(remaining))
	}
	if remaining[0].ID != msgs[0].ID || remaining[1].ID != msgs[1].ID {
		t.Errorf("Wrong messages survived: %d, %d", remaining[0].ID, remaining[1].ID)
	}
	if remaining[0].IsEdited {
		t.Error("Earlier message should not be flagged edited")
	}
	if _, err := testStore.GetAttachment(att.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected attachment of a removed message to be gone, got %v", err)
	}

	untouched, _ := testStore.GetConversationMessages(other.ID)
	if len(untouched) != len(otherMsgs) {
		t.Errorf("Other conversation changed: %d messages", len(untouched))
	}

	if _, _, err := testStore.EditMessage(9999, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEditLastMessageRemovesNothing(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	msgs := seedMessages(t, conv.ID, "m1", "m2")

	_, removed, err := testStore.EditMessage(msgs[1].ID, "changed")
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected nothing removed, got %d", removed)
	}
}

func TestDeleteMessageAndAfter(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	other := seedConversation(t, user.ID, "Other")

	msgs := seedMessages(t, conv.ID, "m1", "m2", "m3", "m4")
	seedMessages(t, other.ID, "o1", "o2", "o3")

	removed, err := testStore.DeleteMessageAndAfter(msgs[2].ID)
	if err != nil {
		t.Fatalf("DeleteMessageAndAfter failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 messages removed, got %d", removed)
	}

	remaining, _ := testStore.GetConversationMessages(conv.ID)
	if len(remaining) != 2 || remaining[1].ID != msgs[1].ID {
		t.Errorf("Unexpected remaining messages: %+v", remaining)
	}

	untouched, _ := testStore.GetConversationMessages(other.ID)
	if len(untouched) != 3 {
		t.Errorf("Expected other conversation untouched, got %d messages", len(untouched))
	}

	if _, err := testStore.DeleteMessageAndAfter(msgs[2].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleted message, got %v", err)
	}
}

func TestSaveAssistantResponseAddsTokens(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := seedUser(t, "alice")
	conv := seedConversation(t, user.ID, "Chat")
	seedMessages(t, conv.ID, "Hello")

	before, _ := testStore.GetConversation(conv.ID)

	msg, err := testStore.SaveAssistantResponse(conv.ID, "Hi, how can I help?", 42, 0.001)
	if err != nil {
		t.Fatalf("SaveAssistantResponse failed: %v", err)
	}
	if msg.ID == 0 || msg.Role != models.RoleAssistant || msg.TokensUsed != 42 {
		t.Errorf("Unexpected saved message: %+v", msg)
	}

	after, _ := testStore.GetConversation(conv.ID)
	if after.TotalTokens-before.TotalTokens != 42 {
		t.Errorf("Expected total_tokens to grow by 42, got %d -> %d", before.TotalTokens, after.TotalTokens)
	}
	if after.TotalCost <= before.TotalCost {
		t.Errorf("Expected total_cost to grow, got %v -> %v", before.TotalCost, after.TotalCost)
	}
	if after.MessageCount != 2 {
		t.Errorf("Expected 2 messages, got %d", after.MessageCount)
	}

	if _, err := testStore.SaveAssistantResponse(9999, "x", 1, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown conversation, got %v", err)
	}
}
