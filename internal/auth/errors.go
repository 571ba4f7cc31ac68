package auth

import "net/http"

// Kind identifies a user-facing authentication failure.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindMissingCredentials
	KindInvalidCredentials
	KindTokenMissing
	KindTokenInvalid
	KindTokenExpired
	KindTokenStale
	KindUserNotFound
	KindMissingLink
	KindResetTokenInvalid
	KindDeliveryFailure
	KindInternal
)

// Error is a recoverable, user-facing failure. Anything that is not an
// *Error is treated as an internal fault and reported as a 500.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	errMissingCredentials = &Error{KindMissingCredentials, http.StatusBadRequest, "Please provide username and password"}
	errInvalidCredentials = &Error{KindInvalidCredentials, http.StatusUnauthorized, "Incorrect username or password!"}
	errWrongPassword      = &Error{KindInvalidCredentials, http.StatusUnauthorized, "Incorrect password!"}
	errTokenMissing       = &Error{KindTokenMissing, http.StatusUnauthorized, "You are not logged in! Please log in again."}
	errTokenInvalid       = &Error{KindTokenInvalid, http.StatusUnauthorized, "Invalid token. Please log in again."}
	errTokenExpired       = &Error{KindTokenExpired, http.StatusUnauthorized, "Your token has expired. Please log in again."}
	errTokenStale         = &Error{KindTokenStale, http.StatusUnauthorized, "User recently changed their password! Please login again."}
	errTokenUserGone      = &Error{KindUserNotFound, http.StatusUnauthorized, "The user belonging to this token does not exist."}
	errNoUserWithEmail    = &Error{KindUserNotFound, http.StatusNotFound, "No user with that email address."}
	errMissingLink        = &Error{KindMissingLink, http.StatusBadRequest, "Link to send not provided!"}
	errResetTokenInvalid  = &Error{KindResetTokenInvalid, http.StatusBadRequest, "Token is invalid or has expired. Please request a new one!"}
	errDeliveryFailure    = &Error{KindDeliveryFailure, http.StatusInternalServerError, "There was an error sending you email! Please try again later!"}
	errInternal           = &Error{KindInternal, http.StatusInternalServerError, "Something went very wrong!"}
)

func invalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Status: http.StatusBadRequest, Message: message}
}
