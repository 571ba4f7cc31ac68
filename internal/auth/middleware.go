package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

var userContextKey contextKey

// CurrentUser returns the user attached by Protect or OptionalUser, or
// false when the request is anonymous.
func CurrentUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// WithUser attaches a resolved user to the context. Exported for handler
// tests; request paths go through the middleware.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// resolveUser turns an Authorization header into a live user. The checks
// run in order: presence, signature, expiry, subject existence, staleness
// against the password-change stamp. Both gates share this path and only
// differ in how they treat a failure.
func (s *Service) resolveUser(ctx context.Context, header string) (User, *Error) {
	if !strings.HasPrefix(header, "Bearer") {
		return User{}, errTokenMissing
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return User{}, errTokenMissing
	}

	claims, authErr := s.tokens.Parse(strings.TrimSpace(parts[1]))
	if authErr != nil {
		return User{}, authErr
	}

	user, err := s.store.FindByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return User{}, errTokenUserGone
		}
		s.logger.Error("token_subject_lookup_failed", map[string]any{"error": err.Error()})
		return User{}, errInternal
	}

	if user.PasswordChangedAfter(claims.IssuedAt) {
		return User{}, errTokenStale
	}

	return user, nil
}

// Protect is the mandatory authentication gate: requests without a valid,
// fresh session token are rejected.
func (s *Service) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, authErr := s.resolveUser(r.Context(), r.Header.Get("Authorization"))
		if authErr != nil {
			writeAuthError(w, authErr)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalUser attaches the user when a valid token is present and lets
// the request continue anonymously on any failure. Endpoints behind it
// decide for themselves what anonymous callers may see.
func (s *Service) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, authErr := s.resolveUser(r.Context(), r.Header.Get("Authorization"))
		if authErr != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}
