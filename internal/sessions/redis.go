package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "findtune:session:"
	stateKeyPrefix   = "findtune:login:"
)

// RedisStore is a [Store] backed by Redis.
//
// Sessions are stored as JSON with a TTL matching their expiry; a pending login adds a
// state -> session id index key.
type RedisStore struct {
	client *redis.Client
	clock  shared.Clock
}

// NewRedisStore connects to the Redis instance at url and pings it.
func NewRedisStore(ctx context.Context, url string, clock shared.Clock) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", shared.ErrInvalidConfig, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStoreWithClient(client, clock), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, clock shared.Clock) *RedisStore {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &RedisStore{client: client, clock: clock}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Expired(r.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	return &s, nil
}

func (r *RedisStore) FindByState(ctx context.Context, state string) (*models.Session, error) {
	if state == "" {
		return nil, shared.ErrSessionNotFound
	}

	id, err := r.client.Get(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read login state: %w", err)
	}

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Login == nil || s.Login.State != state {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", shared.ErrInvalidInput)
	}

	now := r.clock.Now()
	session.UpdatedAt = now

	ttl := session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return r.Delete(ctx, session.ID)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var staleState string
	if prev, err := r.Get(ctx, session.ID); err == nil && prev.Login != nil {
		if session.Login == nil || session.Login.State != prev.Login.State {
			staleState = prev.Login.State
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl)
		if staleState != "" {
			pipe.Del(ctx, stateKeyPrefix+staleState)
		}
		if session.Login != nil {
			pipe.Set(ctx, stateKeyPrefix+session.Login.State, session.ID, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	keys := []string{sessionKeyPrefix + id}
	if prev, err := r.Get(ctx, id); err == nil && prev.Login != nil {
		keys = append(keys, stateKeyPrefix+prev.Login.State)
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
