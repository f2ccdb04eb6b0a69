package redis

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"github.com/redis/go-redis/v9"
)

type stateStore struct {
	client *redis.Client
}

func stateKey(key string) string {
	return keyPrefix + "state:" + key
}

// Load returns the blob saved under key
func (s *stateStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, stateKey(key), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the blob saved under key
func (s *stateStore) Save(ctx context.Context, key string, data []byte) error {
	script := redis.NewScript(saveStateScript)

	keys := []string{stateKey(key)}
	args := []interface{}{data, time.Now().UTC().Format(time.RFC3339Nano)}

	return script.Run(ctx, s.client, keys, args...).Err()
}
