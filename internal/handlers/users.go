package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/auth"
	"github.com/pliu/gemchat/internal/files"
	"github.com/pliu/gemchat/internal/middleware"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

type UserHandler struct {
	Store  store.Store
	Signer *auth.Signer
	Sealer *auth.Sealer
	Files  *files.Service // optional
	Logger *log.Logger
	// DefaultUserID owns cookie-less requests and cannot be deleted.
	DefaultUserID int64
	SecureCookies bool
}

type userView struct {
	*models.User
	HasAPIKey bool `json:"has_api_key"`
}

func viewOf(u *models.User) userView {
	return userView{User: u, HasAPIKey: u.HasAPIKey()}
}

type SessionRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// StartSession looks up the user by name, creating it on first use, and
// sets the signed session cookie.
func (h *UserHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "Username required")
		return
	}
	username := strings.TrimSpace(req.Username)

	user, err := h.Store.GetUserByUsername(username)
	if errors.Is(err, store.ErrNotFound) {
		user = &models.User{Username: username, Email: strings.TrimSpace(req.Email)}
		err = h.Store.CreateUser(user)
		if err == nil {
			h.Logger.Info("user created", "user_id", user.ID, "username", username)
		}
	}
	if err != nil {
		internalError(w, h.Logger, "start session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    h.Signer.Sign(strconv.FormatInt(user.ID, 10)),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, viewOf(user))
}

func (h *UserHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		lookupError(w, h.Logger, "get user", err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(user))
}

// UpdateMeRequest carries only the fields being changed. An empty APIKey
// removes the stored key.
type UpdateMeRequest struct {
	ThemePreference *string `json:"theme_preference"`
	PreferredModel  *string `json:"preferred_model"`
	APIKey          *string `json:"api_key"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		lookupError(w, h.Logger, "get user", err, "User not found")
		return
	}

	if req.ThemePreference != nil || req.PreferredModel != nil {
		if req.ThemePreference != nil {
			switch *req.ThemePreference {
			case "dark", "light":
				user.ThemePreference = *req.ThemePreference
			default:
				writeError(w, http.StatusBadRequest, "Invalid theme")
				return
			}
		}
		if req.PreferredModel != nil {
			if _, ok := ai.LookupModel(*req.PreferredModel); !ok {
				writeError(w, http.StatusBadRequest, "Unknown model")
				return
			}
			user.PreferredModel = *req.PreferredModel
		}
		if err := h.Store.UpdateUserPreferences(userID, user.ThemePreference, user.PreferredModel); err != nil {
			lookupError(w, h.Logger, "update preferences", err, "User not found")
			return
		}
	}

	if req.APIKey != nil {
		sealed := ""
		if key := strings.TrimSpace(*req.APIKey); key != "" {
			sealed, err = h.Sealer.Seal(key)
			if err != nil {
				internalError(w, h.Logger, "seal api key", err)
				return
			}
		}
		if err := h.Store.SetUserAPIKey(userID, sealed); err != nil {
			lookupError(w, h.Logger, "set api key", err, "User not found")
			return
		}
		user.APIKey = sealed
		h.Logger.Info("user API key updated", "user_id", userID, "cleared", sealed == "")
	}

	writeJSON(w, http.StatusOK, viewOf(user))
}

// DeleteMe removes the user with everything it owns and ends the session.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if userID == h.DefaultUserID {
		writeError(w, http.StatusForbidden, "Default user cannot be deleted")
		return
	}

	uploads, err := h.uploads(userID)
	if err != nil {
		internalError(w, h.Logger, "list uploads", err)
		return
	}
	if err := h.Store.DeleteUser(userID); err != nil {
		lookupError(w, h.Logger, "delete user", err, "User not found")
		return
	}
	for _, name := range uploads {
		if _, err := h.Files.Delete(name); err != nil {
			h.Logger.Warn("failed to remove upload", "filename", name, "err", err)
		}
	}
	h.Logger.Info("user deleted", "user_id", userID)

	h.clearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// uploads lists the stored file names attached to the user's messages.
func (h *UserHandler) uploads(userID int64) ([]string, error) {
	if h.Files == nil {
		return nil, nil
	}
	conversations, err := h.Store.ListConversations(userID, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range conversations {
		attachments, err := h.Store.ListAttachments(store.AttachmentFilter{ConversationID: c.ID})
		if err != nil {
			return nil, err
		}
		for _, a := range attachments {
			names = append(names, a.Filename)
		}
	}
	return names, nil
}

func (h *UserHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
