package authkit

import (
	"context"

	internal "github.com/praslov/authkit/internal"
	"github.com/praslov/authkit/session"
)

// Login verifies credentials and opens a new device session. On success it
// returns a fresh access/refresh pair; the session row is seeded from the
// refresh token's own iat/exp claims. Unknown identity and wrong password
// both yield [ErrInvalidCredentials] — callers cannot learn which field
// was wrong.
//
// Device name and client IP for the session row are taken from ctx via
// [WithDeviceName] and [WithClientIP].
func (e *Engine) Login(ctx context.Context, loginOrEmail, pass string) (*TokenPair, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.directory.FindByLoginOrEmail(ctx, loginOrEmail)
	if err != nil {
		return nil, e.storeFault(err)
	}
	if user == nil {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		// A malformed stored hash is store corruption, not a caller error.
		return nil, e.storeFault(err)
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	e.maybeUpgradeHash(ctx, user, pass)

	deviceID, err := internal.NewDeviceID()
	if err != nil {
		return nil, err
	}

	refresh, err := e.tokens.CreateRefresh(user.ID, deviceID)
	if err != nil {
		return nil, err
	}
	claims, err := e.tokens.DecodeUnverified(refresh)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		UserID:     user.ID,
		DeviceID:   deviceID,
		DeviceName: deviceNameFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		IAT:        claims.IssuedAt.Unix(),
		Exp:        claims.ExpiresAt.Unix(),
	}
	if err := e.sessions.Open(ctx, sess); err != nil {
		return nil, e.storeFault(err)
	}

	access, err := e.tokens.CreateAccess(user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionOpened)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// maybeUpgradeHash re-hashes the password with current parameters when the
// stored hash is weaker. Failures only warn; login already succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *User, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	newHash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}

	user.PasswordHash = newHash
	if err := e.directory.Save(ctx, user); err != nil {
		e.warn("authkit: password hash upgrade save failed: %v", err)
	}
}

// CheckAccessToken verifies an access token and confirms the referenced
// user still exists. Token failures yield [ErrTokenInvalid]; a valid token
// for a vanished user yields [ErrUserNotFound].
func (e *Engine) CheckAccessToken(ctx context.Context, accessToken string) (*Identity, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	defer func() {
		e.metrics.Observe(MetricCheckAccessLatency, e.now().Sub(start))
	}()

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := e.directory.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, e.storeFault(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return &Identity{
		UserID: user.ID,
		Login:  user.Login,
		Email:  user.Email,
	}, nil
}
