package authkit

import (
	"context"
	"errors"

	"github.com/praslov/authkit/session"
)

// Refresh exchanges a valid refresh token for a new access/refresh pair
// and rotates the device session in place. A refresh token can be
// exchanged exactly once: the rotation is conditional on the token's iat
// matching the session row, so of N concurrent calls presenting the same
// token at most one succeeds. Presenting an already-rotated-away token
// yields [ErrRefreshReuse] and revokes the device session; a missing
// session yields [ErrTokenInvalid] and requires re-login.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	nextRefresh, err := e.tokens.CreateRefresh(claims.UserID, claims.DeviceID)
	if err != nil {
		return nil, err
	}
	nextClaims, err := e.tokens.DecodeUnverified(nextRefresh)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Rotate(ctx,
		claims.UserID,
		claims.DeviceID,
		claims.IssuedAt.Unix(),
		nextClaims.IssuedAt.Unix(),
		nextClaims.ExpiresAt.Unix(),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrIATMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrSessionNotFound):
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		default:
			return nil, e.storeFault(err)
		}
	}

	access, err := e.tokens.CreateAccess(sess.UserID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: nextRefresh,
	}, nil
}

// Logout verifies the refresh token and closes its device session.
// Idempotent in effect: closing an already-closed session still succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	existed, err := e.sessions.Close(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		return e.storeFault(err)
	}

	e.metricInc(MetricLogout)
	if existed {
		e.metricInc(MetricSessionClosed)
	}

	return nil
}
