package authkit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memDirectory is an in-memory UserDirectory honoring the contract:
// (nil, nil) on miss, copies on the way in and out, and Insert reporting
// unique violations as ErrAccountExists.
type memDirectory struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: map[string]*User{}}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Confirmation.Code != nil {
		c := *u.Confirmation.Code
		out.Confirmation.Code = &c
	}
	if u.Confirmation.ExpiresAt != nil {
		t := *u.Confirmation.ExpiresAt
		out.Confirmation.ExpiresAt = &t
	}
	if u.Recovery.Code != nil {
		c := *u.Recovery.Code
		out.Recovery.Code = &c
	}
	if u.Recovery.ExpiresAt != nil {
		t := *u.Recovery.ExpiresAt
		out.Recovery.ExpiresAt = &t
	}
	return &out
}

func (d *memDirectory) find(match func(*User) bool) *User {
	for _, u := range d.users {
		if match(u) {
			return copyUser(u)
		}
	}
	return nil
}

func (d *memDirectory) FindByID(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyUser(d.users[id]), nil
}

func (d *memDirectory) FindByLoginOrEmail(_ context.Context, value string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.find(func(u *User) bool { return u.Login == value || u.Email == value }), nil
}

func (d *memDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.find(func(u *User) bool { return u.Email == email }), nil
}

func (d *memDirectory) FindByConfirmationCode(_ context.Context, code string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.find(func(u *User) bool {
		return u.Confirmation.Code != nil && *u.Confirmation.Code == code
	}), nil
}

func (d *memDirectory) FindByRecoveryCode(_ context.Context, code string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.find(func(u *User) bool {
		return u.Recovery.Code != nil && *u.Recovery.Code == code
	}), nil
}

func (d *memDirectory) Insert(_ context.Context, user *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Login == user.Login || u.Email == user.Email {
			return fmt.Errorf("%w: duplicate login or email", ErrAccountExists)
		}
	}
	d.users[user.ID] = copyUser(user)
	return nil
}

func (d *memDirectory) Save(_ context.Context, user *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[user.ID]; !ok {
		return fmt.Errorf("save: unknown user %s", user.ID)
	}
	d.users[user.ID] = copyUser(user)
	return nil
}

func (d *memDirectory) byLogin(t *testing.T, login string) *User {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.find(func(u *User) bool { return u.Login == login })
	if u == nil {
		t.Fatalf("no user with login %q", login)
	}
	return u
}

// recordingNotifier captures outbound messages for assertion.
type recordingNotifier struct {
	mu  sync.Mutex
	got []NotifyMessage
}

func (n *recordingNotifier) Send(_ context.Context, msg NotifyMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, msg)
	return nil
}

func (n *recordingNotifier) messages() []NotifyMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotifyMessage, len(n.got))
	copy(out, n.got)
	return out
}

// waitForMessages polls until the notifier has seen n messages. Delivery
// runs on the dispatcher's worker, so assertions must wait for it.
func waitForMessages(t *testing.T, n *recordingNotifier, want int) []NotifyMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := n.messages(); len(msgs) >= want {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notifier saw %d messages, want %d", len(n.messages()), want)
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	engine   *Engine
	dir      *memDirectory
	notifier *recordingNotifier
	clock    *testClock
	redis    *redis.Client
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("access-secret-for-tests-only")
	cfg.Token.RefreshSecret = []byte("refresh-secret-for-tests-only")
	// Hashing cost floor, so the suite stays fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	dir := newMemDirectory()
	notifier := &recordingNotifier{}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithNotifier(notifier).
		WithClock(clock.Now).
		WithWarnLogger(func(string, ...any) {}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, dir: dir, notifier: notifier, clock: clock, redis: rdb}
}

// registerConfirmed registers a user and walks it through confirmation.
func registerConfirmed(t *testing.T, env *testEnv, login, email, pass string) {
	t.Helper()

	if err := env.engine.Register(context.Background(), login, email, pass); err != nil {
		t.Fatalf("Register(%s): %v", login, err)
	}

	u := env.dir.byLogin(t, login)
	if u.Confirmation.Code == nil {
		t.Fatalf("user %s has no confirmation code", login)
	}
	if err := env.engine.ConfirmRegistration(context.Background(), *u.Confirmation.Code); err != nil {
		t.Fatalf("ConfirmRegistration(%s): %v", login, err)
	}
}
