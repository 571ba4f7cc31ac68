package auth

import "time"

// User is the persisted account record. PasswordHash and the reset-token
// fields never serialize; Email is omitted when cleared for public views.
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	Name              string     `json:"name"`
	PasswordHash      string     `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	ResetTokenHash    *string    `json:"-"`
	ResetExpiresAt    *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// PasswordChangedAfter reports whether the password was mutated after the
// given instant. JWT iat carries second resolution, so the comparison is
// done on whole seconds, matching how tokens are stamped.
func (u User) PasswordChangedAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// NewUser carries the whitelisted signup fields. Anything else in the
// request body is rejected at decode time.
type NewUser struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}
