package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or command failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrUserIDRequired is returned when a call names no user.
var ErrUserIDRequired = errors.New("user id required")

// ErrTokenExpired is returned when a token would be written with an expiry
// at or before the store's clock. Nothing is written.
var ErrTokenExpired = errors.New("refresh token already expired")

const replaceRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

var replaceRefreshLua = redis.NewScript(replaceRefreshScript)

// Store binds refresh tokens to users in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store] using prefix as the key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "atok"
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used to turn expiry instants into TTLs.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID + ":" + refresh.LoginProvider + ":" + refresh.TokenName
}

func (s *Store) ttl(expiresAt time.Time) time.Duration {
	return expiresAt.Sub(s.now())
}

// StoreRefreshToken overwrites the user's refresh token. An empty token
// clears the binding; an already expired one fails with [ErrTokenExpired].
func (s *Store) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if token == "" {
		return s.ClearRefreshToken(ctx, userID)
	}
	ttl := s.ttl(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: user %s expires at %s", ErrTokenExpired, userID, expiresAt.UTC().Format(time.RFC3339))
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	digest := refresh.Sum(token)
	if err := s.redis.Set(ctx, s.key(userID), digest[:], ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// VerifyRefreshToken reports whether token is the user's current refresh
// token. A missing or expired binding verifies nothing.
func (s *Store) VerifyRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	if userID == "" || token == "" {
		return false, nil
	}
	raw, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	stored, err := refresh.DigestFromBytes(raw)
	if err != nil {
		return false, nil
	}
	return stored.Matches(token), nil
}

// ReplaceRefreshToken atomically swaps expected for next. It returns false
// without writing when expected is no longer the stored token.
func (s *Store) ReplaceRefreshToken(ctx context.Context, userID, expected, next string, expiresAt time.Time) (bool, error) {
	if userID == "" {
		return false, ErrUserIDRequired
	}
	if expected == "" || next == "" {
		return false, nil
	}
	ttl := s.ttl(expiresAt)
	if ttl <= 0 {
		return false, fmt.Errorf("%w: user %s expires at %s", ErrTokenExpired, userID, expiresAt.UTC().Format(time.RFC3339))
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	prev := refresh.Sum(expected)
	nextDigest := refresh.Sum(next)

	res, err := replaceRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID)},
		string(prev[:]),
		string(nextDigest[:]),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// ClearRefreshToken removes the binding. Clearing an absent binding is a no-op.
func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
