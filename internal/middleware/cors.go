package middleware

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
)

// CORS allows the configured origins to call the API with credentials.
// An empty list or "*" allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader, "X-Conversation-Id", "Content-Disposition"}),
	}
	if len(origins) > 0 && !(len(origins) == 1 && origins[0] == "*") {
		opts = append(opts, handlers.AllowedOrigins(origins), handlers.AllowCredentials())
	}
	return handlers.CORS(opts...)
}

// Recovery turns handler panics into 500 responses and logs them.
func Recovery(logger *log.Logger) func(http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})),
		handlers.PrintRecoveryStack(false),
	)
}
