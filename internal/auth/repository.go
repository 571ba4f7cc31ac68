package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNoUser is returned by store lookups that match nothing. Callers map
// it to the user-facing error appropriate for their operation.
var ErrNoUser = errors.New("user not found")

// CredentialStore persists user records. Password hashing happens inside
// the store on write; plaintext never lands in a row. UpdatePassword and
// Create enforce the confirmation-equality contract, so every password
// mutation goes through the same validation regardless of which flow
// triggered it.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)

	// FindByResetTokenHash matches only records whose reset token expiry
	// is strictly after now.
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (User, error)

	Create(ctx context.Context, input NewUser) (User, error)

	// UpdatePassword validates the pair, stores the new hash, stamps
	// password_changed_at and clears any outstanding reset fields in a
	// single atomic row update.
	UpdatePassword(ctx context.Context, id, password, passwordConfirm string, changedAt time.Time) (User, error)

	// SetResetToken and ClearResetToken write the reset fields without
	// re-validating unrelated required fields; both fields move together.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error

	// ClearExpiredResetTokens drops stale reset fields in batches and
	// reports how many rows were touched.
	ClearExpiredResetTokens(ctx context.Context, now time.Time, batchSize int) (int64, error)
}
