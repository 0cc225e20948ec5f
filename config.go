package authkit

import "time"

// Config carries all engine tuning. Obtain a baseline from
// [DefaultConfig], override what the deployment needs, and pass it to
// [Builder.WithConfig]. Secrets have no defaults and must be set.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Password     PasswordConfig
	Confirmation ConfirmationConfig
	Recovery     RecoveryConfig
	Throttle     ThrottleConfig
	Notify       NotifyConfig
	Metrics      MetricsConfig
}

// TokenConfig holds signing secrets and lifetimes for the two token
// kinds. Lifetimes are deployment constants, never hardcoded in flows.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	RedisPrefix string
}

// PasswordConfig holds argon2id cost parameters.
type PasswordConfig struct {
	Memory         uint32 // KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// ConfirmationConfig controls email confirmation codes.
type ConfirmationConfig struct {
	CodeTTL time.Duration
}

// RecoveryConfig controls password recovery codes.
type RecoveryConfig struct {
	CodeTTL time.Duration
}

// ThrottleConfig controls the sliding-window request throttle. Ceiling
// admitted requests per Window per (client IP, endpoint path).
type ThrottleConfig struct {
	Enabled     bool
	Window      time.Duration
	Ceiling     int
	RedisPrefix string
}

// NotifyConfig controls the asynchronous notification dispatcher.
type NotifyConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Signing secrets are
// intentionally absent; Build fails without them.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Confirmation: ConfirmationConfig{
			CodeTTL: time.Hour + time.Minute,
		},
		Recovery: RecoveryConfig{
			CodeTTL: time.Hour + time.Minute,
		},
		Throttle: ThrottleConfig{
			Enabled:     true,
			Window:      10 * time.Second,
			Ceiling:     5,
			RedisPrefix: "thr",
		},
		Notify: NotifyConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// cloneConfig deep-copies cfg so a caller mutating its struct after
// WithConfig cannot affect a built engine.
func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = append([]byte(nil), cfg.Token.AccessSecret...)
	out.Token.RefreshSecret = append([]byte(nil), cfg.Token.RefreshSecret...)
	return out
}
