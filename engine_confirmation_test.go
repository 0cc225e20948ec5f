package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func confirmationCode(t *testing.T, env *testEnv, login string) string {
	t.Helper()
	u := env.dir.byLogin(t, login)
	if u.Confirmation.Code == nil {
		t.Fatalf("user %s has no confirmation code", login)
	}
	return *u.Confirmation.Code
}

func TestConfirmRegistration(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if err := env.engine.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	code := confirmationCode(t, env, "alice")
	if err := env.engine.ConfirmRegistration(ctx, code); err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}

	if got := env.dir.byLogin(t, "alice").Confirmation.Status; got != StatusConfirmed {
		t.Fatalf("status = %d, want Confirmed", got)
	}
}

func TestConfirmRegistrationRepeat(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if err := env.engine.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	code := confirmationCode(t, env, "alice")
	if err := env.engine.ConfirmRegistration(ctx, code); err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}

	// Same code again: the already-confirmed check fires before any
	// code validity check.
	if err := env.engine.ConfirmRegistration(ctx, code); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("repeat confirm: %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirmRegistrationUnknownCode(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.engine.ConfirmRegistration(context.Background(), "not-a-real-code")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("unknown code: %v, want ErrCodeInvalid", err)
	}
	if field, _, ok := ErrorField(err); !ok || field != "code" {
		t.Fatalf("field = %q, want code", field)
	}
}

func TestConfirmRegistrationExpiredCode(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if err := env.engine.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	code := confirmationCode(t, env, "alice")

	env.clock.Advance(2 * time.Hour)

	if err := env.engine.ConfirmRegistration(ctx, code); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expired code: %v, want ErrCodeInvalid", err)
	}
	if got := env.dir.byLogin(t, "alice").Confirmation.Status; got != StatusNotConfirmed {
		t.Fatalf("expired code flipped status to %d", got)
	}
}

func TestResendConfirmationInvalidatesOldCode(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if err := env.engine.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	oldCode := confirmationCode(t, env, "alice")

	if err := env.engine.ResendConfirmation(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendConfirmation: %v", err)
	}

	newCode := confirmationCode(t, env, "alice")
	if newCode == oldCode {
		t.Fatal("resend did not rotate the code")
	}

	if err := env.engine.ConfirmRegistration(ctx, oldCode); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("old code: %v, want ErrCodeInvalid", err)
	}
	if err := env.engine.ConfirmRegistration(ctx, newCode); err != nil {
		t.Fatalf("new code: %v", err)
	}

	msgs := waitForMessages(t, env.notifier, 2)
	if msgs[1].Code != newCode {
		t.Fatal("resend notification carries a stale code")
	}
}

func TestResendConfirmationFailures(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	err := env.engine.ResendConfirmation(ctx, "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown email: %v, want ErrUserNotFound", err)
	}

	registerConfirmed(t, env, "alice", "alice@example.com", "hunter22")
	if err := env.engine.ResendConfirmation(ctx, "alice@example.com"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("confirmed email: %v, want ErrAlreadyConfirmed", err)
	}
}
