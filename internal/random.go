package internal

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// NewDeviceID returns a fresh opaque device identifier. A new one is minted
// on every login so two logins from the same browser never share a session.
func NewDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("device id generation failed: %w", err)
	}
	return id.String(), nil
}

// NewID returns an opaque entity identifier for newly created users.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("id generation failed: %w", err)
	}
	return id.String(), nil
}

// NewCode returns a one-time confirmation or recovery code. UUID-shaped,
// sourced from crypto/rand.
func NewCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}
	return id.String(), nil
}

// NewThrottleMember returns a unique member string for a throttle window
// entry. Uniqueness matters: two requests admitted in the same millisecond
// must still count as two records.
func NewThrottleMember() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "m:0"
	}
	return fmt.Sprintf("m:%x", b)
}
