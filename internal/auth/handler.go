package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

// Handler exposes the authentication endpoints. Every success reply uses
// the {"status":"success","token":...,"data":{"user":...}} envelope and
// the user payload never carries a password hash.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updatePasswordRequest struct {
	Password        string `json:"password"`
	NewPassword     string `json:"newPassword"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body NewUser
	if !decodeJSON(w, r, &body) {
		return
	}

	user, token, err := h.service.Signup(r.Context(), body)
	if err != nil {
		writeServiceError(w, err, "failed to sign up")
		return
	}

	writeUserWithToken(w, http.StatusCreated, token, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	user, token, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, err, "failed to login")
		return
	}

	writeUserWithToken(w, http.StatusOK, token, user)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.RequestReset(r.Context(), body.Email, body.Link); err != nil {
		writeServiceError(w, err, "failed to request password reset")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Link to change password sent to your email!",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	user, token, err := h.service.ResetPassword(r.Context(), r.PathValue("token"), body.Password, body.PasswordConfirm)
	if err != nil {
		writeServiceError(w, err, "failed to reset password")
		return
	}

	writeUserWithToken(w, http.StatusOK, token, user)
}

func (h *Handler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	current, ok := CurrentUser(r.Context())
	if !ok {
		writeAuthError(w, errTokenMissing)
		return
	}

	var body updatePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	user, token, err := h.service.ChangePassword(r.Context(), current, body.Password, body.NewPassword, body.PasswordConfirm)
	if err != nil {
		writeServiceError(w, err, "failed to change password")
		return
	}

	writeUserWithToken(w, http.StatusOK, token, user)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var userErr *Error
	if errors.As(err, &userErr) {
		writeAuthError(w, userErr)
		return
	}

	sentry.CaptureException(err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"status":  "error",
		"message": fallback,
	})
}

func writeAuthError(w http.ResponseWriter, authErr *Error) {
	if authErr.Status >= http.StatusInternalServerError {
		writeJSON(w, authErr.Status, map[string]string{
			"status":  "error",
			"message": authErr.Message,
		})
		return
	}

	writeFail(w, authErr.Status, authErr.Message)
}

func writeUserWithToken(w http.ResponseWriter, status int, token string, user User) {
	writeJSON(w, status, map[string]any{
		"status": "success",
		"token":  token,
		"data":   map[string]any{"user": user},
	})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "fail",
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
