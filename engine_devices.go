package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/praslov/authkit/session"
	"github.com/praslov/authkit/token"
)

// callerSession verifies a refresh token and resolves its live session.
// The presented token's iat must match the stored row exactly — a token
// that was already rotated away cannot authenticate device-management
// calls either.
func (e *Engine) callerSession(ctx context.Context, refreshToken string) (*token.RefreshClaims, *session.Session, error) {
	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}

	sess, err := e.sessions.FindByDevice(ctx, claims.DeviceID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, e.storeFault(err)
	}
	if sess.UserID != claims.UserID || sess.IAT != claims.IssuedAt.Unix() {
		return nil, nil, ErrTokenInvalid
	}

	return claims, sess, nil
}

// ListDevices returns all active sessions of the caller's user.
func (e *Engine) ListDevices(ctx context.Context, refreshToken string) ([]Device, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, _, err := e.callerSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	sessions, err := e.sessions.ListByUser(ctx, claims.UserID)
	if err != nil {
		return nil, e.storeFault(err)
	}

	devices := make([]Device, 0, len(sessions))
	for _, s := range sessions {
		devices = append(devices, Device{
			DeviceID:     s.DeviceID,
			DeviceName:   s.DeviceName,
			IP:           s.IP,
			LastActiveAt: time.Unix(s.IAT, 0),
			ExpiresAt:    time.Unix(s.Exp, 0),
		})
	}

	return devices, nil
}

// RevokeDevice closes the session of one of the caller's devices. A
// deviceID owned by another user yields [ErrForbidden], never a
// not-found, so device ids cannot be probed. An unknown deviceID yields
// [ErrSessionNotFound].
func (e *Engine) RevokeDevice(ctx context.Context, refreshToken, deviceID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	claims, _, err := e.callerSession(ctx, refreshToken)
	if err != nil {
		return err
	}

	target, err := e.sessions.FindByDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return e.storeFault(err)
	}
	if target.UserID != claims.UserID {
		return ErrForbidden
	}

	if _, err := e.sessions.Close(ctx, target.UserID, target.DeviceID); err != nil {
		return e.storeFault(err)
	}

	e.metricInc(MetricDeviceRevoked)
	e.metricInc(MetricSessionClosed)

	return nil
}

// RevokeOtherDevices closes every session of the caller's user except the
// one the presented refresh token is bound to.
func (e *Engine) RevokeOtherDevices(ctx context.Context, refreshToken string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	claims, _, err := e.callerSession(ctx, refreshToken)
	if err != nil {
		return err
	}

	closed, err := e.sessions.CloseAllExcept(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		return e.storeFault(err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < closed; i++ {
		e.metricInc(MetricSessionClosed)
	}

	return nil
}
