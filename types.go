package authkit

import (
	"context"
	"time"

	"github.com/praslov/authkit/internal/notify"
)

// ConfirmationStatus is the email confirmation state of a [User].
type ConfirmationStatus uint8

const (
	// StatusNotConfirmed is the initial state of self-registered users.
	StatusNotConfirmed ConfirmationStatus = iota
	// StatusConfirmed is reached once the confirmation code is accepted.
	// Administratively created users start here.
	StatusConfirmed
)

// EmailConfirmation is the confirmation sub-state embedded in a [User].
// Code and ExpiresAt are nil when no code is outstanding.
type EmailConfirmation struct {
	Code      *string
	ExpiresAt *time.Time
	Status    ConfirmationStatus
}

// PasswordRecovery is the recovery sub-state embedded in a [User]. Both
// fields are nil unless a recovery was requested and not yet consumed.
type PasswordRecovery struct {
	Code      *string
	ExpiresAt *time.Time
}

// User is the identity record managed through [UserDirectory]. Login and
// Email are globally unique. Users are never deleted by this core.
type User struct {
	ID           string
	Login        string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	Confirmation EmailConfirmation
	Recovery     PasswordRecovery
}

// UserDirectory is the durable user store the host application must
// provide. Lookups return (nil, nil) when no record matches; errors are
// reserved for infrastructure failures. Insert should report a unique
// violation on login or email as an error matching [ErrAccountExists], so
// index-backed directories close the check/insert race.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByLoginOrEmail(ctx context.Context, value string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByConfirmationCode(ctx context.Context, code string) (*User, error)
	FindByRecoveryCode(ctx context.Context, code string) (*User, error)
	Insert(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is returned by CheckAccessToken.
type Identity struct {
	UserID string
	Login  string
	Email  string
}

// Device is one active login session as returned by ListDevices.
// LastActiveAt is the issue time of the session's current refresh token.
type Device struct {
	DeviceID     string
	DeviceName   string
	IP           string
	LastActiveAt time.Time
	ExpiresAt    time.Time
}

// Notifier delivers outbound notifications. Implementations are invoked
// from a background worker; a returned error is logged and counted, never
// surfaced to the request that triggered it.
type Notifier = notify.Sender

// NotifyMessage is the payload handed to a [Notifier].
type NotifyMessage = notify.Message

// NotifyKind selects the notification template.
type NotifyKind = notify.Kind

const (
	// NotifyConfirmation carries a registration confirmation code.
	NotifyConfirmation = notify.KindConfirmation
	// NotifyRecovery carries a password recovery code.
	NotifyRecovery = notify.KindRecovery
)
