package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pliu/gemchat/internal/auth"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// SessionCookie holds the signed user id.
const SessionCookie = "user_id"

// Identify resolves the requesting user from the signed session cookie.
// Requests without a cookie act as fallbackUserID; a cookie that fails
// verification is rejected.
func Identify(signer *auth.Signer, fallbackUserID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := fallbackUserID

			if cookie, err := r.Cookie(SessionCookie); err == nil {
				userIDStr, err := signer.Verify(cookie.Value)
				if err != nil {
					unauthorized(w)
					return
				}
				userID, err = strconv.ParseInt(userIDStr, 10, 64)
				if err != nil {
					unauthorized(w)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID returns the user id stored by Identify.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
