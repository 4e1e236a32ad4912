package caching

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisSnapshotTracker mirrors the latest accepted backend snapshot
// per game so the REST surface can answer "current table" queries
// without touching a live session loop.
type RedisSnapshotTracker struct {
	rdclient *redis.Client
}

func NewRedisSnapshotTracker(redisURL string, redisPW string, redisDB int) *RedisSnapshotTracker {
	rdclient := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: redisPW,
		DB:       redisDB,
	})
	return &RedisSnapshotTracker{
		rdclient: rdclient,
	}
}

func snapshotKey(gameID string) string {
	return fmt.Sprintf("session|%s", gameID)
}

func (r *RedisSnapshotTracker) Save(ctx context.Context, gameID string, frame []byte) error {
	err := r.rdclient.Set(ctx, snapshotKey(gameID), frame, 0).Err()
	if err != nil {
		return errors.Wrapf(err, "Unable to save snapshot for game %s", gameID)
	}
	return nil
}

func (r *RedisSnapshotTracker) Load(ctx context.Context, gameID string) ([]byte, error) {
	data, err := r.rdclient.Get(ctx, snapshotKey(gameID)).Result()
	if err == redis.Nil {
		return nil, errors.Errorf("Snapshot for game %s is not found", gameID)
	} else if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (r *RedisSnapshotTracker) Remove(ctx context.Context, gameID string) error {
	return r.rdclient.Del(ctx, snapshotKey(gameID)).Err()
}
