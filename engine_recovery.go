package authkit

import (
	"context"

	internal "github.com/praslov/authkit/internal"
)

// RequestPasswordRecovery issues a recovery code for email. The outcome is
// success whether or not the email is known — recovery requests must not
// confirm account existence — but a code is persisted and sent only when a
// matching user exists.
func (e *Engine) RequestPasswordRecovery(ctx context.Context, email string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	e.metricInc(MetricRecoveryRequest)

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return e.storeFault(err)
	}
	if user == nil {
		return nil
	}

	code, err := internal.NewCode()
	if err != nil {
		return err
	}
	expiresAt := e.now().Add(e.config.Recovery.CodeTTL)

	user.Recovery = PasswordRecovery{
		Code:      &code,
		ExpiresAt: &expiresAt,
	}

	if err := e.directory.Save(ctx, user); err != nil {
		return e.storeFault(err)
	}

	e.emitNotification(ctx, user.Email, NotifyRecovery, code)

	return nil
}

// ResetPassword consumes a recovery code and stores a re-hashed password.
// Unknown and expired codes yield the same [ErrCodeInvalid] outcome. The
// recovery code is cleared on success; codes are single-use.
func (e *Engine) ResetPassword(ctx context.Context, code, newPassword string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	user, err := e.directory.FindByRecoveryCode(ctx, code)
	if err != nil {
		return e.storeFault(err)
	}
	if user == nil {
		e.metricInc(MetricPasswordResetFailure)
		return fieldErr(ErrCodeInvalid, "recoveryCode", "recovery code is incorrect")
	}
	if user.Recovery.ExpiresAt == nil || !e.now().Before(*user.Recovery.ExpiresAt) {
		e.metricInc(MetricPasswordResetFailure)
		return fieldErr(ErrCodeInvalid, "recoveryCode", "recovery code expired")
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return fieldErr(ErrPasswordPolicy, "newPassword", err.Error())
	}

	user.PasswordHash = hash
	user.Recovery = PasswordRecovery{}

	if err := e.directory.Save(ctx, user); err != nil {
		return e.storeFault(err)
	}

	e.metricInc(MetricPasswordResetSuccess)

	return nil
}
