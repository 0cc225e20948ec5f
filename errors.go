package authkit

import "errors"

var (
	// ErrInvalidCredentials is returned on login when the identity is
	// unknown or the password is wrong. The two cases are never
	// distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when registration collides with an
	// existing login or email.
	ErrAccountExists = errors.New("account already exists")
	// ErrCodeInvalid covers unknown and expired one-time codes, for both
	// confirmation and recovery.
	ErrCodeInvalid = errors.New("code invalid or expired")
	// ErrAlreadyConfirmed is returned when confirming or re-sending for an
	// already confirmed email.
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	// ErrPasswordPolicy is returned when a new password fails the hasher's
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrTokenInvalid covers bad signature, malformed payload, and expiry
	// of either token kind, and refresh tokens whose session is gone.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshReuse is returned when a refresh token that was already
	// rotated away is presented again. The device session is revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when a revocation target does not
	// exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is returned when a token references a user that no
	// longer exists, or a resend targets an unknown email.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned when a caller tries to revoke a session
	// owned by another user.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited is returned by the throttle gate.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps infrastructure failures of the session,
	// throttle, or user stores.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady is returned when an Engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FieldError attaches the offending input field and a display message to a
// sentinel error. errors.Is against the sentinel still matches.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(err error, field, message string) error {
	return &FieldError{Field: field, Message: message, Err: err}
}

// ErrorField extracts the field/message pair from err's chain, if any.
func ErrorField(err error) (field, message string, ok bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field, fe.Message, true
	}
	return "", "", false
}
