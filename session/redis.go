package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefixes every attempt key written by RedisNotes.
const DefaultRedisPrefix = "smsotp:attempt:"

// redisAPI defines the Redis commands used by RedisNotes.
// *redis.Client satisfies it.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisNotes implements NoteStore with one JSON value per attempt.
// Keys expire at the retention deadline, so Redis removes abandoned attempts.
type RedisNotes struct {
	client redisAPI
	prefix string
}

// NewRedisNotes connects to the Redis server at rawURL
// (redis://[user:password@]host:port/db).
func NewRedisNotes(rawURL string) (*RedisNotes, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisNotesWithClient(redis.NewClient(opt)), nil
}

// newRedisNotesWithClient creates a RedisNotes with a custom client.
// This is primarily used for testing with mock clients.
func newRedisNotesWithClient(client redisAPI) *RedisNotes {
	return &RedisNotes{client: client, prefix: DefaultRedisPrefix}
}

// Ping checks connectivity when the client supports it.
func (s *RedisNotes) Ping(ctx context.Context) error {
	pinger, ok := s.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	})
	if !ok {
		return nil
	}
	return pinger.Ping(ctx).Err()
}

// Load reads and decodes the attempt value. A missing key returns empty notes.
func (s *RedisNotes) Load(ctx context.Context, attemptID string) (map[string]string, error) {
	raw, err := s.client.Get(ctx, s.prefix+attemptID).Result()
	if errors.Is(err, redis.Nil) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	notes := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptNotes, err)
	}
	return notes, nil
}

// Save writes the notes with an absolute expiry in a single SET.
func (s *RedisNotes) Save(ctx context.Context, attemptID string, notes map[string]string, retainUntil time.Time) error {
	data, err := json.Marshal(copyNotes(notes))
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	err = s.client.SetArgs(ctx, s.prefix+attemptID, string(data), redis.SetArgs{ExpireAt: retainUntil}).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the attempt key.
func (s *RedisNotes) Delete(ctx context.Context, attemptID string) error {
	if err := s.client.Del(ctx, s.prefix+attemptID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
