package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"dinner_recipe_bot/internal/domain"
)

var _ domain.SettingsStore = (*RedisStore)(nil)

const redisKeyPrefix = "dinner:user_state:"

type redisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

type goRedisClient struct {
	cli *redis.Client
}

func (c *goRedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.cli.Get(ctx, key).Result()
}

func (c *goRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *goRedisClient) Close() error { return c.cli.Close() }

// newRedisClient is overridable for tests.
var newRedisClient = func(opts *redis.Options) redisClient {
	return &goRedisClient{cli: redis.NewClient(opts)}
}

// RedisStore keeps each user state as a JSON value without expiry.
type RedisStore struct {
	client redisClient
}

// NewRedisStore connects to Redis and verifies connectivity with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := newRedisClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(userID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, userID)
}

// Get loads and decodes the JSON value of userID.
func (s *RedisStore) Get(ctx context.Context, userID int64) (domain.UserState, bool, error) {
	if userID == 0 {
		return domain.UserState{}, false, errUserIDRequired
	}

	data, err := s.client.Get(ctx, redisKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.UserState{}, false, nil
		}
		return domain.UserState{}, false, fmt.Errorf("get user state: %w", err)
	}

	var state domain.UserState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return domain.UserState{}, false, fmt.Errorf("decode user state: %w", err)
	}

	return state, true, nil
}

// Set encodes state as JSON and writes it without expiry.
func (s *RedisStore) Set(ctx context.Context, state domain.UserState) error {
	if state.UserID == 0 {
		return fmt.Errorf("set user state: %w", errUserIDRequired)
	}

	state.Normalize()
	state.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode user state: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(state.UserID), data, 0); err != nil {
		return fmt.Errorf("set user state: %w", err)
	}

	return nil
}

// Update reads, mutates and rewrites the value; callers serialize writers.
func (s *RedisStore) Update(ctx context.Context, userID int64, fn func(*domain.UserState) error) (domain.UserState, error) {
	state, ok, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserState{}, err
	}
	if !ok {
		return domain.UserState{}, domain.ErrStateNotFound
	}

	if err := fn(&state); err != nil {
		return domain.UserState{}, err
	}
	state.UserID = userID

	if err := s.Set(ctx, state); err != nil {
		return domain.UserState{}, err
	}

	state.Normalize()
	return state, nil
}

// Ping checks that the server answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client connections.
func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
