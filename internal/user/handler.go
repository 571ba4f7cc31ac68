package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"codejourney/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// Handler serves the profile endpoints. Authentication itself lives in
// the auth package; this is persistence glue over the same store.
type Handler struct {
	store   auth.CredentialStore
	service *auth.Service
}

func NewHandler(store auth.CredentialStore, service *auth.Service) *Handler {
	return &Handler{store: store, service: service}
}

// GetProfile returns a user by username. The owner sees their full
// record; everyone else gets the public view with the email removed.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	found, err := h.store.FindByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, auth.ErrNoUser) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "fail",
				"message": "No such user",
			})
			return
		}
		sentry.CaptureException(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "failed to fetch user",
		})
		return
	}

	if current, ok := auth.CurrentUser(r.Context()); !ok || current.Username != found.Username {
		found.Email = ""
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]any{"user": found},
	})
}

type deleteMeRequest struct {
	Password string `json:"password"`
}

// DeleteMe removes the authenticated account after re-confirming the
// password.
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"status":  "fail",
			"message": "You are not logged in! Please log in again.",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body deleteMeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "fail",
			"message": "invalid json body",
		})
		return
	}

	if err := h.service.DeleteAccount(r.Context(), current, body.Password); err != nil {
		var userErr *auth.Error
		if errors.As(err, &userErr) {
			writeJSON(w, userErr.Status, map[string]string{
				"status":  "fail",
				"message": userErr.Message,
			})
			return
		}
		sentry.CaptureException(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "failed to delete user",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
