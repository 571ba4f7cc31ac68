package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codejourney/internal/mailer"
)

// RequestReset starts the self-service password reset: a fresh random
// token is minted, only its hash is persisted, and the plaintext goes out
// once through the notifier. If delivery fails the stored hash is cleared
// again so a token the user never received can never be redeemed.
func (s *Service) RequestReset(ctx context.Context, email, link string) error {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return errNoUserWithEmail
		}
		return fmt.Errorf("find user by email: %w", err)
	}
	if link == "" {
		return errMissingLink
	}

	plaintext, tokenHash, err := newResetToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(s.resetTTL)
	if err := s.store.SetResetToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/resetpassword/%s", link, plaintext)
	message := mailer.Message{
		To:      user.Email,
		Subject: "Reset password token. Valid for 10 min only!",
		Body: fmt.Sprintf("Forgot password? Submit a patch request with your new password and passwordConfirm to:\n %s\n\nPlease ignore this message if you didn't forget the password!", resetURL),
	}

	if err := s.notifier.Send(ctx, message); err != nil {
		// The rollback write must land even when the request was
		// canceled mid-send; otherwise an undelivered token stays live.
		if clearErr := s.store.ClearResetToken(context.WithoutCancel(ctx), user.ID); clearErr != nil {
			s.logger.Error("reset_token_rollback_failed", map[string]any{
				"user_id": user.ID,
				"error":   clearErr.Error(),
			})
		}
		s.logger.Error("reset_email_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return errDeliveryFailure
	}

	return nil
}

// ResetPassword consumes a reset token. The lookup keys on the hash of
// the supplied plaintext and only matches a record whose expiry is still
// in the future, so wrong, reused and expired tokens all fail the same
// way. A successful consumption clears the reset fields and rotates the
// credential in one store update.
func (s *Service) ResetPassword(ctx context.Context, plainToken, password, passwordConfirm string) (User, string, error) {
	tokenHash := hashResetToken(plainToken)

	user, err := s.store.FindByResetTokenHash(ctx, tokenHash, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return User{}, "", errResetTokenInvalid
		}
		return User{}, "", fmt.Errorf("find user by reset token: %w", err)
	}

	updated, err := s.store.UpdatePassword(ctx, user.ID, password, passwordConfirm, passwordChangeStamp())
	if err != nil {
		// A matched token is spent even when the new password pair is
		// rejected; the user has to request a fresh one.
		var userErr *Error
		if errors.As(err, &userErr) {
			if clearErr := s.store.ClearResetToken(context.WithoutCancel(ctx), user.ID); clearErr != nil {
				s.logger.Error("reset_token_consume_failed", map[string]any{
					"user_id": user.ID,
					"error":   clearErr.Error(),
				})
			}
		}
		return User{}, "", err
	}

	token, err := s.tokens.Issue(updated.ID)
	if err != nil {
		return User{}, "", err
	}

	return updated, token, nil
}

func newResetToken() (plaintext, tokenHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}

	plaintext = hex.EncodeToString(buf)
	return plaintext, hashResetToken(plaintext), nil
}

func hashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
