package authkit

import (
	"context"
	"errors"

	internal "github.com/praslov/authkit/internal"
)

// Register creates a new user through the self-service path: status
// NotConfirmed with a live confirmation code, delivered asynchronously.
// Conflicts report the offending field. The pre-checks give useful
// messages; a unique-index-backed directory additionally reports the
// duplicate from Insert, which closes the check/insert race.
func (e *Engine) Register(ctx context.Context, login, email, pass string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if err := e.checkUnique(ctx, login, email); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return fieldErr(ErrPasswordPolicy, "password", err.Error())
	}

	code, err := internal.NewCode()
	if err != nil {
		return err
	}
	expiresAt := e.now().Add(e.config.Confirmation.CodeTTL)

	user, err := e.newUser(login, email, hash)
	if err != nil {
		return err
	}
	user.Confirmation = EmailConfirmation{
		Code:      &code,
		ExpiresAt: &expiresAt,
		Status:    StatusNotConfirmed,
	}

	if err := e.directory.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterConflict)
			return err
		}
		return e.storeFault(err)
	}

	e.emitNotification(ctx, user.Email, NotifyConfirmation, code)

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricConfirmationIssued)

	return nil
}

// AdminCreateUser creates a user through the administrative path: status
// Confirmed, no outstanding code, no notification.
func (e *Engine) AdminCreateUser(ctx context.Context, login, email, pass string) (*User, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkUnique(ctx, login, email); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, fieldErr(ErrPasswordPolicy, "password", err.Error())
	}

	user, err := e.newUser(login, email, hash)
	if err != nil {
		return nil, err
	}
	user.Confirmation.Status = StatusConfirmed

	if err := e.directory.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterConflict)
			return nil, err
		}
		return nil, e.storeFault(err)
	}

	e.metricInc(MetricRegisterSuccess)

	return user, nil
}

func (e *Engine) checkUnique(ctx context.Context, login, email string) error {
	existing, err := e.directory.FindByLoginOrEmail(ctx, login)
	if err != nil {
		return e.storeFault(err)
	}
	if existing != nil {
		e.metricInc(MetricRegisterConflict)
		return fieldErr(ErrAccountExists, "login", "login already taken")
	}

	existing, err = e.directory.FindByEmail(ctx, email)
	if err != nil {
		return e.storeFault(err)
	}
	if existing != nil {
		e.metricInc(MetricRegisterConflict)
		return fieldErr(ErrAccountExists, "email", "email already registered")
	}

	return nil
}

func (e *Engine) newUser(login, email, hash string) (*User, error) {
	id, err := internal.NewID()
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           id,
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    e.now(),
	}, nil
}
