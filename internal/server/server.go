// Package server wires the handlers into one routed http.Handler.
package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/auth"
	"github.com/pliu/gemchat/internal/files"
	"github.com/pliu/gemchat/internal/handlers"
	"github.com/pliu/gemchat/internal/middleware"
	"github.com/pliu/gemchat/internal/store"
	"github.com/pliu/gemchat/internal/util"
	"github.com/pliu/gemchat/internal/ws"
)

// Deps are the long-lived services the routes share. They are built once
// at startup.
type Deps struct {
	Logger    *log.Logger
	Store     store.Store
	Responder ai.Responder
	Streamer  ai.Streamer
	Search    handlers.Augmenter // optional
	Files     *files.Service
	Signer    *auth.Signer
	Sealer    *auth.Sealer
	Hub       *ws.Hub // optional; nil disables /ws

	DefaultUserID int64
	StaticDir     string
	CORSOrigins   []string
	MaxUploadSize int64
	SocketRetry   util.Policy
	SecureCookies bool
	Version       string
}

// NewRouter builds the application handler.
func NewRouter(d Deps) http.Handler {
	chat := &handlers.ChatHandler{Store: d.Store, Streamer: d.Streamer, Search: d.Search, Sealer: d.Sealer, Logger: d.Logger}
	conversations := &handlers.ConversationHandler{Store: d.Store, Files: d.Files, Logger: d.Logger}
	uploads := &handlers.FileHandler{Store: d.Store, Files: d.Files, Logger: d.Logger, MaxUploadSize: d.MaxUploadSize}
	users := &handlers.UserHandler{
		Store:         d.Store,
		Signer:        d.Signer,
		Sealer:        d.Sealer,
		Files:         d.Files,
		Logger:        d.Logger,
		DefaultUserID: d.DefaultUserID,
		SecureCookies: d.SecureCookies,
	}

	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "version": d.Version})
	}).Methods("GET")

	identify := middleware.Identify(d.Signer, d.DefaultUserID)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(identify)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Resource not found"})
	})

	// Chat
	api.HandleFunc("/chat", chat.SendMessage).Methods("POST")
	api.HandleFunc("/chat/save-response", chat.SaveResponse).Methods("POST")
	api.HandleFunc("/chat/{id:[0-9]+}", chat.EditMessage).Methods("PUT")
	api.HandleFunc("/chat/{id:[0-9]+}", chat.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/models", chat.Models).Methods("GET")
	api.HandleFunc("/tokens/count", chat.CountTokens).Methods("POST")

	// Conversations
	api.HandleFunc("/conversations", conversations.ListConversations).Methods("GET")
	api.HandleFunc("/conversations", conversations.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/search", conversations.SearchConversations).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}", conversations.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}", conversations.UpdateConversation).Methods("PUT")
	api.HandleFunc("/conversations/{id:[0-9]+}", conversations.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/conversations/{id:[0-9]+}/export", conversations.ExportConversation).Methods("POST")

	// Files
	api.HandleFunc("/upload", uploads.Upload).Methods("POST")
	api.HandleFunc("/files", uploads.ListFiles).Methods("GET")
	api.HandleFunc("/files/process", uploads.Process).Methods("POST")
	api.HandleFunc("/files/download/{id:[0-9]+}", uploads.Download).Methods("GET")
	api.HandleFunc("/files/{id:[0-9]+}", uploads.GetFile).Methods("GET")
	api.HandleFunc("/files/{id:[0-9]+}", uploads.DeleteFile).Methods("DELETE")

	// Users
	api.HandleFunc("/session", users.StartSession).Methods("POST")
	api.HandleFunc("/session", users.EndSession).Methods("DELETE")
	api.HandleFunc("/users/me", users.GetMe).Methods("GET")
	api.HandleFunc("/users/me", users.UpdateMe).Methods("PUT")
	api.HandleFunc("/users/me", users.DeleteMe).Methods("DELETE")

	// WebSocket Endpoint
	if d.Hub != nil {
		socket := &ws.Handler{
			Hub:       d.Hub,
			Responder: d.Responder,
			Store:     d.Store,
			Retry:     d.SocketRetry,
			Logger:    d.Logger,
		}
		if allowAnyOrigin(d.CORSOrigins) {
			socket.CheckOrigin = func(*http.Request) bool { return true }
		}
		r.Handle("/ws", identify(socket))
	}

	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(staticHandler(d.StaticDir))
	}

	var h http.Handler = r
	h = middleware.CORS(d.CORSOrigins)(h)
	h = middleware.LoggingMiddleware(d.Logger)(h)
	h = middleware.Recovery(d.Logger)(h)
	return h
}

// staticHandler serves the front end, with caching disabled for scripts and
// stylesheets.
func staticHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		if strings.HasSuffix(r.URL.Path, ".css") || strings.HasSuffix(r.URL.Path, ".js") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}
		fs.ServeHTTP(w, r)
	})
}

func allowAnyOrigin(origins []string) bool {
	return len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
}
