// Package session persists per-device login sessions in Redis and owns the
// atomic compare-iat-and-rotate step of refresh token rotation. Rows are
// JSON blobs keyed by device id, with a per-user index set for listing and
// bulk revocation. All multi-step mutations run as Lua scripts so two
// racing refresh calls can never both rotate the same row.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when no row exists for the device.
var ErrSessionNotFound = errors.New("session not found")

// ErrIATMismatch is returned when the presented refresh token's issued-at
// does not match the stored row. The row is deleted as a side effect:
// a mismatch means the token was already rotated away, so its reuse marks
// the device session as compromised.
var ErrIATMismatch = errors.New("session iat mismatch")

// ErrRedisUnavailable wraps infrastructure failures of the session store.
var ErrRedisUnavailable = errors.New("session redis unavailable")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusMismatch    int64 = 1
	rotateStatusRotated     int64 = 2
	rotateStatusWrongOwner  int64 = 3
	rotateStatusInvalidBlob int64 = 4
)

// rotateScript performs GET → compare iat → overwrite iat/exp in one step.
// KEYS[1] session key, KEYS[2] user index key.
// ARGV: expectedIAT, newIAT, newExp, deviceID, nowUnix, expectedUserID.
var rotateScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end

local ok, sess = pcall(cjson.decode, data)
if not ok or type(sess) ~= 'table' then
  return {4}
end

if sess.uid ~= ARGV[6] then
  return {3}
end

if tonumber(sess.iat) ~= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[4])
  return {1}
end

local ttl = (tonumber(ARGV[3]) - tonumber(ARGV[5])) * 1000
if ttl <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[4])
  return {0}
end

sess.iat = tonumber(ARGV[2])
sess.exp = tonumber(ARGV[3])
redis.call('SET', KEYS[1], cjson.encode(sess), 'PX', ttl)
redis.call('SADD', KEYS[2], ARGV[4])
return {2, cjson.encode(sess)}
`)

// closeScript deletes a session row and its index entry atomically.
// Returns 1 if the row existed.
var closeScript = redis.NewScript(`
local existed = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return existed
`)

// closeAllExceptScript revokes every device of a user except one.
// KEYS[1] user index key; ARGV[1] device to keep, ARGV[2] session key prefix.
var closeAllExceptScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local closed = 0
for _, did in ipairs(members) do
  if did ~= ARGV[1] then
    redis.call('DEL', ARGV[2] .. did)
    redis.call('SREM', KEYS[1], did)
    closed = closed + 1
  end
end
return closed
`)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store]. prefix namespaces keys; now is the injectable
// clock used for TTL computation.
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "as"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Open inserts a new session row. The caller guarantees deviceID is fresh
// per login, so at most one live row per (user, device) holds.
func (s *Store) Open(ctx context.Context, sess *Session) error {
	now := s.now()
	if sess.Exp <= now.Unix() {
		return errors.New("session already expired at open")
	}
	ttl := time.Unix(sess.Exp, 0).Sub(now)

	blob, err := encodeSession(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(sess.DeviceID), blob, ttl)
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.DeviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// FindByDevice returns the session row for deviceID.
func (s *Store) FindByDevice(ctx context.Context, deviceID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob", ErrRedisUnavailable)
	}
	if !sess.Live(s.now().Unix()) {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Rotate atomically overwrites the row's iat/exp, conditional on the
// stored iat equaling expectedIAT. When two refresh calls race on the same
// device at most one observes the expected iat; the loser gets
// [ErrIATMismatch] and the row is revoked.
func (s *Store) Rotate(ctx context.Context, userID, deviceID string, expectedIAT, newIAT, newExp int64) (*Session, error) {
	res, err := rotateScript.Run(ctx, s.redis,
		[]string{s.key(deviceID), s.userKey(userID)},
		expectedIAT,
		newIAT,
		newExp,
		deviceID,
		s.now().Unix(),
		userID,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate result", ErrRedisUnavailable)
	}

	status, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected rotate result type", ErrRedisUnavailable)
	}

	switch status {
	case rotateStatusRotated:
		if len(res) < 2 {
			return nil, fmt.Errorf("%w: rotate result missing blob", ErrRedisUnavailable)
		}
		blob, _ := res[1].(string)
		sess, decErr := decodeSession([]byte(blob))
		if decErr != nil {
			return nil, fmt.Errorf("%w: corrupt session blob", ErrRedisUnavailable)
		}
		return sess, nil
	case rotateStatusMismatch:
		return nil, ErrIATMismatch
	case rotateStatusNotFound, rotateStatusWrongOwner:
		return nil, ErrSessionNotFound
	case rotateStatusInvalidBlob:
		return nil, fmt.Errorf("%w: corrupt session blob", ErrRedisUnavailable)
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Close removes the session row for (userID, deviceID). Reports whether a
// row existed; closing an already-closed session is not an error.
func (s *Store) Close(ctx context.Context, userID, deviceID string) (bool, error) {
	res, err := closeScript.Run(ctx, s.redis,
		[]string{s.key(deviceID), s.userKey(userID)},
		deviceID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return res == 1, nil
}

// CloseAllExcept revokes every session of userID except keepDeviceID.
// Returns the number of sessions closed. The kept device's row is never
// touched.
func (s *Store) CloseAllExcept(ctx context.Context, userID, keepDeviceID string) (int, error) {
	res, err := closeAllExceptScript.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		keepDeviceID,
		s.prefix+":",
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return int(res), nil
}

// ListByUser returns all live sessions of userID. Index entries whose rows
// have expired are pruned as a side effect.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	deviceIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, did := range deviceIDs {
		keys[i] = s.key(did)
	}

	blobs, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := s.now().Unix()
	sessions := make([]*Session, 0, len(blobs))
	var stale []interface{}

	for i, blob := range blobs {
		data, ok := blob.(string)
		if !ok {
			stale = append(stale, deviceIDs[i])
			continue
		}
		sess, decErr := decodeSession([]byte(data))
		if decErr != nil || !sess.Live(nowUnix) {
			stale = append(stale, deviceIDs[i])
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sessions, nil
}
