package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(service *Service) *http.ServeMux {
	handler := NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users/signup", handler.Signup)
	mux.HandleFunc("POST /api/v1/users/login", handler.Login)
	mux.HandleFunc("POST /api/v1/users/forgotpassword", handler.ForgotPassword)
	mux.HandleFunc("PATCH /api/v1/users/resetpassword/{token}", handler.ResetPassword)
	mux.Handle("PATCH /api/v1/users/updatemypassword", service.Protect(http.HandlerFunc(handler.UpdateMyPassword)))

	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)

	var decoded map[string]any
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded), "body: %s", recorder.Body.String())
	}

	return recorder, decoded
}

func userPayload(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "data present")
	user, ok := data["user"].(map[string]any)
	require.True(t, ok, "data.user present")

	return user
}

func TestSignupEndpoint(t *testing.T) {
	service, _, _ := newTestService(t)
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/signup", "", `{
		"username": "alice",
		"email": "alice@example.com",
		"name": "Alice A",
		"password": "Secret123",
		"passwordConfirm": "Secret123"
	}`)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["token"], "token present")

	user := userPayload(t, body)
	assert.Equal(t, "alice", user["username"])
	_, hasHash := user["passwordHash"]
	assert.False(t, hasHash, "passwordHash absent from payload")
	_, hasSnakeHash := user["password_hash"]
	assert.False(t, hasSnakeHash)
}

func TestSignupEndpointRejectsUnknownFields(t *testing.T) {
	service, _, _ := newTestService(t)
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/signup", "", `{
		"username": "alice",
		"email": "alice@example.com",
		"name": "Alice A",
		"password": "Secret123",
		"passwordConfirm": "Secret123",
		"role": "admin"
	}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "fail", body["status"])
}

func TestLoginEndpointWrongPassword(t *testing.T) {
	service, _, _ := newTestService(t)
	signupTestUser(t, service, "alice")
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/login", "", `{
		"username": "alice",
		"password": "WrongPass123"
	}`)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "Incorrect username or password!", body["message"])
}

func TestLoginEndpointSuccessOmitsPasswordHash(t *testing.T) {
	service, _, _ := newTestService(t)
	signupTestUser(t, service, "alice")
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/login", "", `{
		"username": "alice",
		"password": "Secret123"
	}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, body["token"])
	user := userPayload(t, body)
	_, hasHash := user["passwordHash"]
	assert.False(t, hasHash)
}

func TestProtectedEndpointWithExpiredToken(t *testing.T) {
	service, _, _ := newTestService(t)
	user := signupTestUser(t, service, "alice")
	mux := newTestMux(service)

	expired := signTestToken(t, testSecret, user.ID, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	recorder, body := doJSON(t, mux, http.MethodPatch, "/api/v1/users/updatemypassword", expired, `{
		"password": "Secret123",
		"newPassword": "NewSecret123",
		"passwordConfirm": "NewSecret123"
	}`)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "Your token has expired. Please log in again.", body["message"])
}

func TestUpdateMyPasswordEndpoint(t *testing.T) {
	service, _, _ := newTestService(t)
	user := signupTestUser(t, service, "alice")
	mux := newTestMux(service)

	token, err := service.tokens.Issue(user.ID)
	require.NoError(t, err)

	recorder, body := doJSON(t, mux, http.MethodPatch, "/api/v1/users/updatemypassword", token, `{
		"password": "Secret123",
		"newPassword": "NewSecret123",
		"passwordConfirm": "NewSecret123"
	}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["token"], "fresh token so the caller stays logged in")
	user2 := userPayload(t, body)
	_, hasHash := user2["passwordHash"]
	assert.False(t, hasHash)
}

func TestForgotAndResetPasswordEndpoints(t *testing.T) {
	service, _, notifier := newTestService(t)
	signupTestUser(t, service, "alice")
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/forgotpassword", "", `{
		"email": "nobody@example.com",
		"link": "https://app.example.com"
	}`)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "No user with that email address.", body["message"])

	recorder, body = doJSON(t, mux, http.MethodPost, "/api/v1/users/forgotpassword", "", `{
		"email": "alice@example.com",
		"link": "https://app.example.com"
	}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Link to change password sent to your email!", body["message"])

	msg, ok := notifier.lastMessage()
	require.True(t, ok)
	plaintext := resetTokenFromMessage(t, msg.Body)

	recorder, body = doJSON(t, mux, http.MethodPatch, "/api/v1/users/resetpassword/"+plaintext, "", `{
		"password": "Brand-New-1",
		"passwordConfirm": "Brand-New-1"
	}`)
	require.Equal(t, http.StatusOK, recorder.Code, "body: %v", body)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["token"])
	user := userPayload(t, body)
	_, hasHash := user["passwordHash"]
	assert.False(t, hasHash)

	recorder, body = doJSON(t, mux, http.MethodPatch, "/api/v1/users/resetpassword/"+plaintext, "", `{
		"password": "Another-Pass1",
		"passwordConfirm": "Another-Pass1"
	}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Token is invalid or has expired. Please request a new one!", body["message"])
}

func TestForgotPasswordDeliveryFailure(t *testing.T) {
	service, _, notifier := newTestService(t)
	signupTestUser(t, service, "alice")
	notifier.failure = errNotifierDown
	mux := newTestMux(service)

	recorder, body := doJSON(t, mux, http.MethodPost, "/api/v1/users/forgotpassword", "", `{
		"email": "alice@example.com",
		"link": "https://app.example.com"
	}`)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "There was an error sending you email! Please try again later!", body["message"])
}
