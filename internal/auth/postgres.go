package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// PostgresStore is the CredentialStore backed by the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `
	id, username, email, name, password_hash,
	password_changed_at, password_reset_token_hash, password_reset_expires_at,
	created_at, updated_at
`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	var changedAt, resetExpires sql.NullTime
	var resetHash sql.NullString

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Name, &user.PasswordHash,
		&changedAt, &resetHash, &resetExpires,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNoUser
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}

	if changedAt.Valid {
		value := changedAt.Time.UTC()
		user.PasswordChangedAt = &value
	}
	if resetHash.Valid {
		value := resetHash.String
		user.ResetTokenHash = &value
	}
	if resetExpires.Valid {
		value := resetExpires.Time.UTC()
		user.ResetExpiresAt = &value
	}

	return user, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *PostgresStore) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE password_reset_token_hash = $1
		  AND password_reset_expires_at > $2
	`, tokenHash, now.UTC()))
}

func (s *PostgresStore) Create(ctx context.Context, input NewUser) (User, error) {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)

	if err := validateNewUser(input); err != nil {
		return User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user, err := s.scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+userColumns+`
	`, id.String(), input.Username, input.Email, input.Name, string(hash), now))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, invalidInput("Username or email already taken!")
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id, password, passwordConfirm string, changedAt time.Time) (User, error) {
	if err := validatePasswordPair(password, passwordConfirm); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	return s.scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash = $2,
		    password_changed_at = $3,
		    password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, string(hash), changedAt.UTC(), now))
}

func (s *PostgresStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_reset_token_hash = $2,
		    password_reset_expires_at = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	return requireRow(result)
}

func (s *PostgresStore) ClearResetToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}

	return requireRow(result)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return requireRow(result)
}

func (s *PostgresStore) ClearExpiredResetTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	result, err := s.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE password_reset_expires_at IS NOT NULL
			  AND password_reset_expires_at <= $1
			ORDER BY password_reset_expires_at ASC
			LIMIT $2
		)
		UPDATE users u
		SET password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = $1
		FROM stale
		WHERE u.id = stale.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired reset tokens rows affected: %w", err)
	}

	return affected, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoUser
	}

	return nil
}

func validateNewUser(input NewUser) error {
	switch {
	case input.Username == "":
		return invalidInput("Please provide a username!")
	case input.Email == "" || !strings.Contains(input.Email, "@"):
		return invalidInput("Please provide a valid email!")
	case input.Name == "":
		return invalidInput("Please provide your name!")
	}

	return validatePasswordPair(input.Password, input.PasswordConfirm)
}

func validatePasswordPair(password, passwordConfirm string) error {
	if len(password) < minPasswordLength {
		return invalidInput("Password must be at least 8 characters long!")
	}
	if password != passwordConfirm {
		return invalidInput("Passwords do not match!")
	}

	return nil
}
