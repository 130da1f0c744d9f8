package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

const sessionKeyPrefix = "classync:session:"

// RedisStore shares session records across processes so a student's join can
// resolve a session the teacher created elsewhere.
// FUNCTIONAL DISCOVERY: Records carry a TTL because sessions are ephemeral;
// an abandoned classroom cleans itself up without a reaper process
type RedisStore struct {
	client *redis.Client
	logger *logrus.Entry
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, logger *logrus.Logger, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisStore{
		client: client,
		logger: logger.WithField("component", "redis-session-store"),
		ttl:    ttl,
	}
}

// SaveSession upserts the room's record with a fresh TTL.
func (s *RedisStore) SaveSession(ctx context.Context, sess *types.SessionData) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.RoomID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSessionByRoom returns the room's record, refreshing its TTL.
func (s *RedisStore) GetSessionByRoom(ctx context.Context, roomID string) (*types.SessionData, error) {
	key := sessionKeyPrefix + roomID
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess types.SessionData
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// A looked-up session is a live session; push its expiry out
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Warn("session TTL refresh failed")
	}
	return &sess, nil
}

// DeleteSession removes the room's record; missing records are a no-op.
func (s *RedisStore) DeleteSession(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+roomID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
