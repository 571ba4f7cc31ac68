package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 90 * 24 * time.Hour

// Tokens signs and verifies session tokens. The secret and lifetime are
// injected once at construction; business code never reads them ambiently.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// TokenClaims is the verified content of a session token.
type TokenClaims struct {
	SubjectID string
	IssuedAt  time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs {sub, iat, exp} for the given subject. It only fails when
// signing itself fails, which is a server fault, never a caller error.
func (t *Tokens) Issue(subjectID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subjectID,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, nil
}

// Parse validates signature and expiry. Expiry is reported distinctly from
// every other defect so callers can tell an outdated session from a forged
// or mangled one.
func (t *Tokens) Parse(raw string) (TokenClaims, *Error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, errTokenExpired
		}
		return TokenClaims{}, errTokenInvalid
	}
	if !token.Valid {
		return TokenClaims{}, errTokenInvalid
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return TokenClaims{}, errTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return TokenClaims{}, errTokenInvalid
	}

	return TokenClaims{
		SubjectID: subject,
		IssuedAt:  time.Unix(int64(issuedAt), 0).UTC(),
	}, nil
}
