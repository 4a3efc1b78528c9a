package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/pliu/gemchat/internal/middleware"
	"github.com/pliu/gemchat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers 500 with its text.
func internalError(w http.ResponseWriter, logger *log.Logger, op string, err error) {
	logger.Error("request failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// lookupError answers 404 with notFoundMsg for store.ErrNotFound and 500
// otherwise.
func lookupError(w http.ResponseWriter, logger *log.Logger, op string, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	internalError(w, logger, op, err)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// currentUser returns the id placed on the context by middleware.Identify.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok || userID == 0 {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}
