package sqlstore

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pliu/gemchat/internal/models"
)

var testStore *SQLStore

func SetupTestDB(t *testing.T) {
	var err error
	testStore, err = New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
}

func TeardownTestDB() {
	testStore.db.Close()
}

func seedUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username}
	if err := testStore.CreateUser(user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func seedConversation(t *testing.T, userID int64, title string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{UserID: userID, Title: title}
	if err := testStore.CreateConversation(conv); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	return conv
}

func seedMessages(t *testing.T, conversationID int64, contents ...string) []*models.Message {
	t.Helper()
	var out []*models.Message
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := &models.Message{ConversationID: conversationID, Role: role, Content: content}
		if err := testStore.CreateMessage(msg); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func seedAttachment(t *testing.T, messageID int64, name string) *models.Attachment {
	t.Helper()
	att := &models.Attachment{
		MessageID:        &messageID,
		Filename:         "20250101_120000_" + name,
		OriginalFilename: name,
		FileType:         "txt",
		FileSize:         5,
		FilePath:         "uploads/20250101_120000_" + name,
		MimeType:         "text/plain",
	}
	if err := testStore.CreateAttachment(att); err != nil {
		t.Fatalf("Failed to create attachment: %v", err)
	}
	return att
}

func TestNewCreatesSchemaIdempotently(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	if err := testStore.createTables(); err != nil {
		t.Errorf("Second createTables failed: %v", err)
	}
}

func TestRebind(t *testing.T) {
	s := &SQLStore{driverName: "postgres"}
	got := s.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("rebind returned %q, want %q", got, want)
	}

	s.driverName = "sqlite3"
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
}

func TestWithSQLiteForeignKeys(t *testing.T) {
	tests := map[string]string{
		":memory:":                  ":memory:?_foreign_keys=on",
		"chat.db?cache=shared":      "chat.db?cache=shared&_foreign_keys=on",
		"chat.db?_foreign_keys=off": "chat.db?_foreign_keys=off",
	}
	for in, want := range tests {
		if got := withSQLiteForeignKeys(in); got != want {
			t.Errorf("withSQLiteForeignKeys(%q) = %q, want %q", in, got, want)
		}
	}
}
