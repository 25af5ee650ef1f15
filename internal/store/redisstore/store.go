package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nutrichat/nutrichat/internal/common"
)

// ErrNoSession is returned when a token is unknown or expired.
var ErrNoSession = errors.New("session not found")

// Store keeps server-side login sessions: an opaque token maps to a user id
// with a sliding TTL. There is no stateless token scheme.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl: sessionTTL,
	}
}

func sessionKey(token string) string { return "sess:" + token }

// CreateSession issues a fresh opaque token for userID.
func (s *Store) CreateSession(ctx context.Context, userID uint64) (string, error) {
	token, err := common.NewULID()
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, sessionKey(token), strconv.FormatUint(userID, 10), s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// SessionUserID resolves a token to a user id and refreshes its TTL.
func (s *Store) SessionUserID(ctx context.Context, token string) (uint64, error) {
	v, err := s.rdb.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNoSession
		}
		return 0, err
	}
	uid, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	_ = s.rdb.Expire(ctx, sessionKey(token), s.ttl).Err()
	return uid, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKey(token)).Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
