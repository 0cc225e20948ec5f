package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authkit "github.com/praslov/authkit"
)

type singleUserDirectory struct {
	user *authkit.User
}

func (d *singleUserDirectory) match(ok bool) (*authkit.User, error) {
	if !ok || d.user == nil {
		return nil, nil
	}
	u := *d.user
	return &u, nil
}

func (d *singleUserDirectory) FindByID(_ context.Context, id string) (*authkit.User, error) {
	return d.match(d.user != nil && d.user.ID == id)
}

func (d *singleUserDirectory) FindByLoginOrEmail(_ context.Context, v string) (*authkit.User, error) {
	return d.match(d.user != nil && (d.user.Login == v || d.user.Email == v))
}

func (d *singleUserDirectory) FindByEmail(_ context.Context, email string) (*authkit.User, error) {
	return d.match(d.user != nil && d.user.Email == email)
}

func (d *singleUserDirectory) FindByConfirmationCode(context.Context, string) (*authkit.User, error) {
	return nil, nil
}

func (d *singleUserDirectory) FindByRecoveryCode(context.Context, string) (*authkit.User, error) {
	return nil, nil
}

func (d *singleUserDirectory) Insert(_ context.Context, u *authkit.User) error {
	copied := *u
	d.user = &copied
	return nil
}

func (d *singleUserDirectory) Save(_ context.Context, u *authkit.User) error {
	copied := *u
	d.user = &copied
	return nil
}

func newTestEngine(t *testing.T) *authkit.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authkit.DefaultConfig()
	cfg.Token.AccessSecret = []byte("access-secret-for-tests-only")
	cfg.Token.RefreshSecret = []byte("refresh-secret-for-tests-only")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Throttle.Ceiling = 3

	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(&singleUserDirectory{}).
		WithWarnLogger(func(string, ...any) {}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func TestThrottleReturns429OverCeiling(t *testing.T) {
	engine := newTestEngine(t)

	handler := Throttle(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		if code := send(); code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i+1, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("over ceiling: status %d, want 429", code)
	}
}

func TestThrottleAttachesClientMetadata(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.AdminCreateUser(context.Background(), "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("AdminCreateUser: %v", err)
	}

	var pair *authkit.TokenPair
	handler := Throttle(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := engine.Login(r.Context(), "alice", "hunter22")
		if err != nil {
			t.Errorf("Login: %v", err)
			return
		}
		pair = p
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "firefox on linux")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if pair == nil {
		t.Fatal("login did not run")
	}

	devices, err := engine.ListDevices(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].IP != "203.0.113.7" || devices[0].DeviceName != "firefox on linux" {
		t.Fatalf("device metadata = %+v", devices)
	}
}

func TestRequireAccess(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.AdminCreateUser(context.Background(), "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("AdminCreateUser: %v", err)
	}
	pair, err := engine.Login(context.Background(), "alice", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var seen *authkit.Identity
	handler := RequireAccess(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("no identity in context")
			return
		}
		seen = id
	}))

	send := func(auth string) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("Bearer " + pair.AccessToken); code != http.StatusOK {
		t.Fatalf("valid token: status %d", code)
	}
	if seen == nil || seen.Login != "alice" {
		t.Fatalf("identity = %+v", seen)
	}

	for _, auth := range []string{"", "Bearer ", "Bearer garbage", "Token " + pair.AccessToken} {
		if code := send(auth); code != http.StatusUnauthorized {
			t.Fatalf("auth %q: status %d, want 401", auth, code)
		}
	}
}
