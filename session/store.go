package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every storage-infrastructure failure so
// callers can distinguish "record absent" (redis.Nil) from "store down".
var ErrRedisUnavailable = errors.New("redis unavailable")

// upsertScript implements the atomic upsert-by-device. The device key
// maps (userID, fingerprint) to the live session ID; if it points at an
// existing record the incoming payload adopts that record's id and
// createdAt and replaces it in place, otherwise the candidate record is
// installed under the new ID. Running inside Redis makes concurrent
// logins from the same device race on a single writer, so the store's
// uniqueness guarantee, not application locks, decides the winner.
const upsertScript = `
local device_key = KEYS[1]
local user_key = KEYS[2]
local session_prefix = ARGV[1]
local candidate = ARGV[2]
local payload = ARGV[3]
local ttl_ms = tonumber(ARGV[4])

local existing_id = redis.call("GET", device_key)
if existing_id then
  local existing_key = session_prefix .. existing_id
  local data = redis.call("GET", existing_key)
  if data then
    local current = cjson.decode(data)
    local incoming = cjson.decode(payload)
    incoming.id = current.id
    incoming.createdAt = current.createdAt
    redis.call("SET", existing_key, cjson.encode(incoming), "PX", ttl_ms)
    redis.call("SET", device_key, existing_id, "PX", ttl_ms)
    redis.call("SADD", user_key, existing_id)
    return {0, existing_id}
  end
end

redis.call("SET", session_prefix .. candidate, payload, "PX", ttl_ms)
redis.call("SET", device_key, candidate, "PX", ttl_ms)
redis.call("SADD", user_key, candidate)
return {1, candidate}
`

var upsertLua = redis.NewScript(upsertScript)

// deleteScript removes a session together with its device pointer and its
// entry in the user index, in one round trip.
const deleteScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. sess.userId .. ":" .. sess.deviceId)
redis.call("SREM", ARGV[2] .. sess.userId, sess.id)
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// Store persists session records in Redis. Expiry is enforced by the
// store's TTL mechanism; no application-level sweeper exists. Reads
// double-check the recorded expiry because TTL reaping is
// eventually-consistent with wall-clock time.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store backed by the given Redis client.
// prefix namespaces all keys.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionPrefix() string {
	return s.prefix + "s:"
}

func (s *Store) devicePrefix() string {
	return s.prefix + "d:"
}

func (s *Store) userPrefix() string {
	return s.prefix + "u:"
}

func (s *Store) sessionKey(id string) string {
	return s.sessionPrefix() + id
}

func (s *Store) deviceKey(userID, fingerprint string) string {
	return s.devicePrefix() + userID + ":" + fingerprint
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Upsert installs the record under its (UserID, Fingerprint) pair,
// replacing the tokens/descriptor of an existing live session in place.
// It returns the surviving session ID and whether a new record was
// created. The operation is atomic: a request cancelled mid-login never
// leaves a half-written session.
func (s *Store) Upsert(ctx context.Context, sess *Session, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, errors.New("session ttl must be positive")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return "", false, err
	}

	result, err := upsertLua.Run(
		ctx,
		s.redis,
		[]string{s.deviceKey(sess.UserID, sess.Fingerprint), s.userKey(sess.UserID)},
		s.sessionPrefix(),
		sess.ID,
		payload,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return "", false, fmt.Errorf("%w: invalid upsert script response", ErrRedisUnavailable)
	}
	created, ok := parts[0].(int64)
	if !ok {
		return "", false, fmt.Errorf("%w: invalid upsert script status", ErrRedisUnavailable)
	}
	id, ok := parts[1].(string)
	if !ok {
		return "", false, fmt.Errorf("%w: invalid upsert script id", ErrRedisUnavailable)
	}

	return id, created == 1, nil
}

// Get retrieves a session by ID. Returns redis.Nil when the record is
// absent or already past its recorded expiry; an expired-but-present
// record is removed on the way out.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}

	if sess.Expired(time.Now()) {
		if _, err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return &sess, nil
}

// FindByDevice resolves the live session for a (userID, fingerprint)
// pair, or redis.Nil when the device has no session.
func (s *Store) FindByDevice(ctx context.Context, userID, fingerprint string) (*Session, error) {
	id, err := s.redis.Get(ctx, s.deviceKey(userID, fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, id)
}

// Delete removes a session, its device pointer, and its user-index entry.
// Returns whether a record existed; deleting twice is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result, err := deleteLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(id)},
		s.devicePrefix(),
		s.userPrefix(),
	).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	existed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid delete script response", ErrRedisUnavailable)
	}
	return existed == 1, nil
}

// SessionIDsForUser returns the tracked session IDs for a user. The index
// may contain IDs whose records have since expired; callers resolving the
// IDs must tolerate redis.Nil.
func (s *Store) SessionIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// DeleteAllForUser removes every tracked session for a user and returns
// how many records existed.
//
// ATOMICITY NOTE: this reads the user index first and then deletes, so a
// session created between the two phases survives the call. The race is
// narrow and only affects revoke-all semantics; the stray session expires
// naturally or is caught by the next call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.SessionIDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		existed, err := s.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// Ping returns a point-in-time availability check and its latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
