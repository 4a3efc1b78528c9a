package middleware

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/auth"
)

var testLogger = log.New(io.Discard)

func TestIdentify(t *testing.T) {
	signer := auth.NewSigner("test-secret")

	tests := []struct {
		name           string
		cookieValue    string
		expectedStatus int
		expectedUser   int64
	}{
		{
			name:           "Valid Cookie",
			cookieValue:    signer.Sign("123"),
			expectedStatus: http.StatusOK,
			expectedUser:   123,
		},
		{
			name:           "Invalid Signature",
			cookieValue:    "MTIz|invalid_signature",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Value",
			cookieValue:    signer.Sign("not_an_int"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Missing Cookie",
			expectedStatus: http.StatusOK,
			expectedUser:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := UserID(r.Context())
				if !ok {
					t.Error("Expected userID in context")
				}
				gotUser = id
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookieValue})
			}
			rr := httptest.NewRecorder()

			Identify(signer, 1)(nextHandler).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					rr.Code, tt.expectedStatus)
			}
			if tt.expectedStatus == http.StatusOK && gotUser != tt.expectedUser {
				t.Errorf("Expected userID %d, got %d", tt.expectedUser, gotUser)
			}
			if tt.expectedStatus == http.StatusUnauthorized {
				if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected JSON error, got Content-Type %q", ct)
				}
				var body map[string]string
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] != "Unauthorized" {
					t.Errorf("unexpected error body %q", rr.Body.String())
				}
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	// Mock next handler that returns 404
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	LoggingMiddleware(testLogger)(nextHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v",
			rr.Code, http.StatusNotFound)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestLoggingMiddleware_KeepsRequestID(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()

	LoggingMiddleware(testLogger)(nextHandler).ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected incoming request id to be echoed, got %q", got)
	}
}

func TestLoggingMiddleware_Flush(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("ResponseWriter does not implement http.Flusher")
		}
		io.WriteString(w, "data: {}\n\n")
		flusher.Flush()
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	LoggingMiddleware(testLogger)(nextHandler).ServeHTTP(rr, req)

	if !rr.Flushed {
		t.Error("Expected the underlying recorder to be flushed")
	}
}

// MockHijacker implements http.Hijacker for testing
type MockHijacker struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (m *MockHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	m.hijacked = true
	return nil, nil, nil
}

func TestLoggingMiddleware_Hijack(t *testing.T) {
	// Mock next handler that tries to hijack
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Error("ResponseWriter does not implement http.Hijacker")
			return
		}
		_, _, err := hijacker.Hijack()
		if err != nil {
			t.Errorf("Hijack failed: %v", err)
		}
	})

	req := httptest.NewRequest("GET", "/", nil)
	// The middleware wraps the writer passed to ServeHTTP, so the writer
	// handed in must itself support hijacking.
	mockWriter := &MockHijacker{ResponseRecorder: httptest.NewRecorder()}

	LoggingMiddleware(testLogger)(nextHandler).ServeHTTP(mockWriter, req)

	if !mockWriter.hijacked {
		t.Error("Expected hijack to reach the underlying writer")
	}
}

func TestCORS(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := CORS([]string{"http://localhost:3000"})(nextHandler)

	req := httptest.NewRequest("GET", "/api/v1/models", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest("GET", "/api/v1/models", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	Recovery(testLogger)(nextHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("handler returned wrong status code: got %v want %v",
			rr.Code, http.StatusInternalServerError)
	}
}
