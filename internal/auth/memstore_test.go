package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codejourney/internal/mailer"
	"codejourney/internal/observability"
)

// memStore is an in-memory CredentialStore honoring the same validation
// contract as the Postgres implementation.
type memStore struct {
	mu     sync.Mutex
	users  map[string]User
	nextID int

	failSetReset   error
	failClearReset error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]User)}
}

func (m *memStore) FindByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNoUser
	}
	return user, nil
}

func (m *memStore) FindByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return User{}, ErrNoUser
}

func (m *memStore) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrNoUser
}

func (m *memStore) FindByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetExpiresAt != nil && user.ResetExpiresAt.After(now) {
			return user, nil
		}
	}
	return User{}, ErrNoUser
}

func (m *memStore) Create(_ context.Context, input NewUser) (User, error) {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)

	if err := validateNewUser(input); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Username == input.Username || user.Email == input.Email {
			return User{}, invalidInput("Username or email already taken!")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.MinCost)
	if err != nil {
		return User{}, err
	}

	m.nextID++
	now := time.Now().UTC()
	user := User{
		ID:           fmt.Sprintf("user-%d", m.nextID),
		Username:     input.Username,
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user

	return user, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, password, passwordConfirm string, changedAt time.Time) (User, error) {
	if err := validatePasswordPair(password, passwordConfirm); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNoUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, err
	}

	stamp := changedAt.UTC()
	user.PasswordHash = string(hash)
	user.PasswordChangedAt = &stamp
	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	user.UpdatedAt = time.Now().UTC()
	m.users[id] = user

	return user, nil
}

func (m *memStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.failSetReset != nil {
		return m.failSetReset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNoUser
	}

	expiry := expiresAt.UTC()
	user.ResetTokenHash = &tokenHash
	user.ResetExpiresAt = &expiry
	m.users[id] = user

	return nil
}

func (m *memStore) ClearResetToken(_ context.Context, id string) error {
	if m.failClearReset != nil {
		return m.failClearReset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNoUser
	}

	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	m.users[id] = user

	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNoUser
	}
	delete(m.users, id)

	return nil
}

func (m *memStore) ClearExpiredResetTokens(_ context.Context, now time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cleared int64
	for id, user := range m.users {
		if user.ResetExpiresAt != nil && !user.ResetExpiresAt.After(now) {
			user.ResetTokenHash = nil
			user.ResetExpiresAt = nil
			m.users[id] = user
			cleared++
			if batchSize > 0 && cleared >= int64(batchSize) {
				break
			}
		}
	}

	return cleared, nil
}

// mutate edits a stored user in place; tests use it to reach states the
// public API would take wall-clock time to produce.
func (m *memStore) mutate(id string, fn func(*User)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.users[id]
	fn(&user)
	m.users[id] = user
}

// fakeNotifier records sent messages and can be told to fail. Attempted
// messages are kept even when delivery fails so tests can get at tokens
// the user never received.
type fakeNotifier struct {
	mu        sync.Mutex
	sent      []mailer.Message
	attempted []mailer.Message
	failure   error
}

func (f *fakeNotifier) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempted = append(f.attempted, msg)
	if f.failure != nil {
		return f.failure
	}
	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeNotifier) lastAttempted() (mailer.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.attempted) == 0 {
		return mailer.Message{}, false
	}
	return f.attempted[len(f.attempted)-1], true
}

func (f *fakeNotifier) lastMessage() (mailer.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sent) == 0 {
		return mailer.Message{}, false
	}
	return f.sent[len(f.sent)-1], true
}

const testSecret = "test-signing-secret"

func newTestService(t *testing.T) (*Service, *memStore, *fakeNotifier) {
	t.Helper()

	store := newMemStore()
	notifier := &fakeNotifier{}
	tokens := NewTokens(testSecret, time.Hour)
	service := NewService(store, notifier, tokens, observability.NewLoggerTo(io.Discard))

	return service, store, notifier
}

func signupTestUser(t *testing.T, service *Service, username string) User {
	t.Helper()

	user, _, err := service.Signup(context.Background(), NewUser{
		Username:        username,
		Email:           username + "@example.com",
		Name:            "Test " + username,
		Password:        "Secret123",
		PasswordConfirm: "Secret123",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}

	return user
}

var errNotifierDown = errors.New("smtp relay unreachable")
