package authkit

import (
	"errors"
	"log"
	"time"

	"github.com/praslov/authkit/internal/notify"
	"github.com/praslov/authkit/internal/rate"
	"github.com/praslov/authkit/password"
	"github.com/praslov/authkit/session"
	"github.com/praslov/authkit/token"

	internal "github.com/praslov/authkit/internal"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. All dependencies are explicit: the
// engine receives its hasher, token codec, stores, and collaborators at
// construction, so tests can substitute any of them through config or the
// With* hooks.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory UserDirectory
	notifier  Notifier
	now       func() time.Time
	warn      func(format string, args ...any)

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and the throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory sets the durable user store collaborator.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithNotifier sets the outbound notification collaborator. Without one,
// confirmation and recovery codes are persisted but nothing is sent.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock overrides the engine's time source. Defaults to [time.Now].
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithWarnLogger overrides the background-failure logger. Defaults to
// [log.Printf].
func (b *Builder) WithWarnLogger(warn func(format string, args ...any)) *Builder {
	b.warn = warn
	return b
}

// Build validates the configuration, constructs every component, and
// returns a ready [Engine]. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory is required")
	}
	if b.config.Confirmation.CodeTTL <= 0 || b.config.Recovery.CodeTTL <= 0 {
		return nil, errors.New("invalid code TTL configuration")
	}
	if b.config.Throttle.Enabled && (b.config.Throttle.Window <= 0 || b.config.Throttle.Ceiling <= 0) {
		return nil, errors.New("invalid throttle configuration")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	warn := b.warn
	if warn == nil {
		warn = log.Printf
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  b.config.Token.AccessSecret,
		RefreshSecret: b.config.Token.RefreshSecret,
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		Issuer:        b.config.Token.Issuer,
		Leeway:        b.config.Token.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(b.redis, b.config.Session.RedisPrefix, now)

	var limiter *rate.Limiter
	if b.config.Throttle.Enabled {
		limiter = rate.New(b.redis, rate.Config{
			Window:  b.config.Throttle.Window,
			Ceiling: b.config.Throttle.Ceiling,
			Prefix:  b.config.Throttle.RedisPrefix,
		}, now, internal.NewThrottleMember)
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Enabled:    b.config.Notify.Enabled,
		BufferSize: b.config.Notify.BufferSize,
		DropIfFull: b.config.Notify.DropIfFull,
	}, b.notifier, warn)

	b.built = true

	return &Engine{
		config:    b.config,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		limiter:   limiter,
		notify:    dispatcher,
		metrics:   NewMetrics(b.config.Metrics),
		directory: b.directory,
		now:       now,
		warn:      warn,
	}, nil
}
