package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/middleware"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store/sqlstore"
)

var testLogger = log.New(io.Discard)

func newTestStore(t *testing.T) *sqlstore.SQLStore {
	t.Helper()
	s, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *sqlstore.SQLStore, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username}
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func seedConversation(t *testing.T, s *sqlstore.SQLStore, userID int64, title string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{UserID: userID, Title: title}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	return conv
}

func seedMessages(t *testing.T, s *sqlstore.SQLStore, conversationID int64, contents ...string) []*models.Message {
	t.Helper()
	var out []*models.Message
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := &models.Message{ConversationID: conversationID, Role: role, Content: content}
		if err := s.CreateMessage(msg); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// newRequest builds a request acting as userID, with an optional JSON body
// and {id} route variable.
func newRequest(method, target string, body any, userID int64, id int64) *http.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id != 0 {
		req = mux.SetURLVars(req, map[string]string{"id": strconv.FormatInt(id, 10)})
	}
	if userID != 0 {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func checkStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if status := rr.Code; status != want {
		t.Fatalf("handler returned wrong status code: got %v want %v (body %q)",
			status, want, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rr, &body)
	return body["error"]
}

// fakeResponder answers every request with the same text and records what
// it was asked.
type fakeResponder struct {
	text   string
	tokens int

	mu       sync.Mutex
	requests []ai.Request
}

func (f *fakeResponder) GetResponse(ctx context.Context, req ai.Request) (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.text, f.tokens
}

func (f *fakeResponder) last(t *testing.T) ai.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("responder was never called")
	}
	return f.requests[len(f.requests)-1]
}

type fakeAugmenter struct {
	results string
	found   bool
}

func (f fakeAugmenter) Augment(ctx context.Context, query string) (string, bool) {
	return f.results, f.found
}

// sseEvents splits a text/event-stream body into decoded data payloads.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed SSE frame %q", frame)
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev); err != nil {
			t.Fatalf("bad SSE payload %q: %v", frame, err)
		}
		events = append(events, ev)
	}
	return events
}
