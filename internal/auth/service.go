package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codejourney/internal/mailer"
	"codejourney/internal/observability"
)

const defaultResetTTL = 10 * time.Minute

// Service orchestrates signup, login, password change and the password
// reset flow on top of the credential store, the notifier and the token
// issuer. It holds no mutable state of its own; every method is safe for
// concurrent use.
type Service struct {
	store    CredentialStore
	notifier mailer.Notifier
	tokens   *Tokens
	logger   *observability.Logger
	resetTTL time.Duration
}

func NewService(store CredentialStore, notifier mailer.Notifier, tokens *Tokens, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		tokens:   tokens,
		logger:   logger,
		resetTTL: defaultResetTTL,
	}
}

// WithResetTTL overrides the reset-token lifetime. Zero or negative values
// keep the default.
func (s *Service) WithResetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.resetTTL = ttl
	}
}

// Signup creates the account and logs the user straight in. The welcome
// message is best effort: a notifier failure is logged but never rolls
// back the account.
func (s *Service) Signup(ctx context.Context, input NewUser) (User, string, error) {
	user, err := s.store.Create(ctx, input)
	if err != nil {
		return User{}, "", err
	}

	welcome := mailer.Message{
		To:      user.Email,
		Subject: "Welcome to CodeJourney! 🚀",
		Body:    welcomeBody(user.Username),
	}
	if err := s.notifier.Send(ctx, welcome); err != nil {
		s.logger.Error("welcome_email_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return User{}, "", err
	}

	return user, token, nil
}

// Login authenticates a username/password pair. Unknown user and wrong
// password produce the identical error so responses cannot be used to
// enumerate registered usernames.
func (s *Service) Login(ctx context.Context, username, password string) (User, string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return User{}, "", errMissingCredentials
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return User{}, "", errInvalidCredentials
		}
		return User{}, "", fmt.Errorf("find user by username: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, "", errInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return User{}, "", err
	}

	return user, token, nil
}

// ChangePassword rotates the credential of an already-authenticated user.
// Stamping password_changed_at invalidates every previously issued token
// for the subject; the fresh token keeps the caller logged in.
func (s *Service) ChangePassword(ctx context.Context, current User, currentPassword, newPassword, passwordConfirm string) (User, string, error) {
	user, err := s.store.FindByID(ctx, current.ID)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return User{}, "", errTokenUserGone
		}
		return User{}, "", fmt.Errorf("find user by id: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return User{}, "", errWrongPassword
	}

	user, err = s.store.UpdatePassword(ctx, user.ID, newPassword, passwordConfirm, passwordChangeStamp())
	if err != nil {
		return User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return User{}, "", err
	}

	return user, token, nil
}

// DeleteAccount removes the user after re-confirming their password.
func (s *Service) DeleteAccount(ctx context.Context, current User, password string) error {
	user, err := s.store.FindByID(ctx, current.ID)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return errTokenUserGone
		}
		return fmt.Errorf("find user by id: %w", err)
	}

	if password == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return errWrongPassword
	}

	if err := s.store.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return nil
}

// passwordChangeStamp backdates the mutation instant by one second. Token
// iat values carry second resolution, so a token issued within the same
// second as the change would otherwise read as not-stale.
func passwordChangeStamp() time.Time {
	return time.Now().UTC().Add(-time.Second)
}

func welcomeBody(username string) string {
	return fmt.Sprintf(`Dear %s,

Welcome aboard! We're thrilled to have you join CodeJourney and embark on your journey to mastering coding skills.

At CodeJourney, we're committed to providing you with the tools and insights you need to excel in your coding endeavors. As a new member, you now have access to a wealth of statistical data from various coding platforms such as LeetCode, GitHub, GeeksforGeeks, and more.

To get started, simply log in to your account and explore all that CodeJourney has to offer. Whether you're a seasoned coder or just starting out, we're here to support you on your coding journey.

Happy coding!

Best regards,
Team CodeJourney
`, username)
}
