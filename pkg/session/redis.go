package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lurewire/decoy/pkg/intel"
)

// releaseScript deletes a lock key only if the caller still owns it.
// Compare-and-delete must be atomic; GET then DEL would race with expiry.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore implements Store on Redis so multiple workers can share
// sessions. Sessions are stored as JSON; the per-session lock is a SET NX
// key with a TTL guarding against a crashed holder.
type RedisStore struct {
	client     redis.UniversalClient
	keyPrefix  string
	lockTTL    time.Duration
	sessionTTL time.Duration // 0 = no expiry
	retryEvery time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace (default "decoy:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithLockTTL sets the lock expiry. Must exceed the worst-case pipeline
// duration including the reply-generation timeout.
func WithLockTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.lockTTL = d }
}

// WithSessionTTL expires idle sessions after d.
func WithSessionTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.sessionTTL = d }
}

// NewRedisStore creates a store on an existing Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		keyPrefix:  "decoy:",
		lockTTL:    30 * time.Second,
		retryEvery: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) sessionKey(id string) string { return s.keyPrefix + "session:" + id }
func (s *RedisStore) lockKey(id string) string    { return s.keyPrefix + "lock:" + id }

// WithLock acquires the distributed lock, loads (or creates) the session,
// runs fn, and persists the session if fn succeeded. Lock release is
// deferred so it happens on every exit path.
func (s *RedisStore) WithLock(ctx context.Context, sessionID string, fn func(*Session) error) error {
	token := uuid.NewString()
	lockKey := s.lockKey(sessionID)

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire session lock: %w", ctx.Err())
		case <-time.After(s.retryEvery):
		}
	}
	defer func() {
		// Best effort with a fresh context: the request context may already
		// be cancelled, and an unreleased lock stalls the session until TTL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, s.client, []string{lockKey}, token).Err()
	}()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		return err
	}
	return s.save(ctx, sess)
}

func (s *RedisStore) load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return New(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.Artifacts == nil {
		sess.Artifacts = intel.NewSet()
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.sessionKey(sess.ID), data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
