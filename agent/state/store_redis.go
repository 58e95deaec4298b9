package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the REDIS_* block for a directly reachable Redis server.
type RedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"deepmarket:checkpoint:"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// RedisStore keeps checkpoints in Redis over the native protocol.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	tail      int
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(cfg RedisConfig, tail int) (*RedisStore, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.TTL < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), cfg.KeyPrefix, cfg.TTL, tail), nil
}

func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, tail int) *RedisStore {
	if tail <= 0 {
		tail = defaultTailMessages
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl, tail: tail}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context, actorID, sessionID string) (*ConversationState, error) {
	key, err := checkpointKey(s.keyPrefix, actorID, sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return decodeCheckpoint(raw)
}

func (s *RedisStore) Save(ctx context.Context, st *ConversationState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	key, err := checkpointKey(s.keyPrefix, st.ActorID, st.SessionID)
	if err != nil {
		return err
	}

	payload, err := encodeCheckpoint(st, s.tail)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, actorID, sessionID string) error {
	key, err := checkpointKey(s.keyPrefix, actorID, sessionID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}
