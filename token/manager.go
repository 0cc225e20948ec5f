// Package token creates and verifies the signed, time-bound access and
// refresh tokens. Both kinds are self-contained HS256 JWTs signed with
// independent secrets. Every verification failure — bad signature, malformed
// payload, expiry — collapses into the single [ErrInvalid] outcome so
// callers cannot be used as an oracle.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is the uniform verification failure for both token kinds.
var ErrInvalid = errors.New("invalid token")

// Config holds signing secrets and lifetimes. AccessSecret and
// RefreshSecret must differ; otherwise a refresh token would verify as an
// access token.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. IssuedAt is the canonical
// timestamp a session row mirrors for replay detection.
type RefreshClaims struct {
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// Manager signs and verifies token pairs. Immutable after construction;
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs an access token for userID.
func (m *Manager) CreateAccess(userID string) (string, error) {
	now := m.config.Now()

	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(m.config.AccessSecret)
}

// CreateRefresh signs a refresh token bound to (userID, deviceID).
func (m *Manager) CreateRefresh(userID, deviceID string) (string, error) {
	now := m.config.Now()

	claims := RefreshClaims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(m.config.RefreshSecret)
}

// VerifyAccess checks signature, expiry, and claim shape of an access
// token. Any failure yields [ErrInvalid].
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.verify(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, ErrInvalid
	}
	if claims.UserID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh checks signature, expiry, and claim shape of a refresh
// token. Any failure yields [ErrInvalid].
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.verify(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || claims.DeviceID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

// DecodeUnverified reads refresh claims without signature or expiry
// checks. Used only to read iat/exp immediately after self-issuing a
// token; never an authorization input.
func (m *Manager) DecodeUnverified(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrInvalid
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) verify(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	return nil
}
