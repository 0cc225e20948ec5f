package authkit

import (
	"context"

	internal "github.com/praslov/authkit/internal"
)

// ConfirmRegistration consumes a confirmation code. Check order, each
// short-circuiting: existence → already-confirmed → expiry → success.
// On success the status flips NotConfirmed→Confirmed; the stored code is
// left in place so a repeated attempt with the same code reports
// [ErrAlreadyConfirmed] rather than an opaque not-found.
func (e *Engine) ConfirmRegistration(ctx context.Context, code string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	user, err := e.directory.FindByConfirmationCode(ctx, code)
	if err != nil {
		return e.storeFault(err)
	}
	if user == nil {
		e.metricInc(MetricConfirmationFailure)
		return fieldErr(ErrCodeInvalid, "code", "confirmation code is incorrect")
	}
	if user.Confirmation.Status == StatusConfirmed {
		e.metricInc(MetricConfirmationFailure)
		return fieldErr(ErrAlreadyConfirmed, "code", "email already confirmed")
	}
	if user.Confirmation.ExpiresAt == nil || !e.now().Before(*user.Confirmation.ExpiresAt) {
		e.metricInc(MetricConfirmationFailure)
		return fieldErr(ErrCodeInvalid, "code", "confirmation code expired")
	}

	user.Confirmation.Status = StatusConfirmed
	if err := e.directory.Save(ctx, user); err != nil {
		return e.storeFault(err)
	}

	e.metricInc(MetricConfirmationSuccess)

	return nil
}

// ResendConfirmation issues a fresh confirmation code for email,
// invalidating any previous one, and re-sends the notification.
func (e *Engine) ResendConfirmation(ctx context.Context, email string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return e.storeFault(err)
	}
	if user == nil {
		return fieldErr(ErrUserNotFound, "email", "no user with this email")
	}
	if user.Confirmation.Status == StatusConfirmed {
		return fieldErr(ErrAlreadyConfirmed, "email", "email already confirmed")
	}

	code, err := internal.NewCode()
	if err != nil {
		return err
	}
	expiresAt := e.now().Add(e.config.Confirmation.CodeTTL)

	user.Confirmation.Code = &code
	user.Confirmation.ExpiresAt = &expiresAt

	if err := e.directory.Save(ctx, user); err != nil {
		return e.storeFault(err)
	}

	e.emitNotification(ctx, user.Email, NotifyConfirmation, code)

	e.metricInc(MetricConfirmationIssued)

	return nil
}
