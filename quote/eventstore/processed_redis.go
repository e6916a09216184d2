package eventstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProcessedStore keeps the processed table in redis, so dedup state
// survives restarts and can be shared between a dev and prod deployment
// pair. Selected when a redis URL is configured.
type RedisProcessedStore struct {
	Client *redis.Client
}

var _ ProcessedStore = (*RedisProcessedStore)(nil)

func NewRedisProcessedStore(redisURL string) (*RedisProcessedStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &RedisProcessedStore{
		Client: rdb,
	}, nil
}

func redisProcessedKey(id string) string {
	return "quotebot/processed/" + id
}

func (s *RedisProcessedStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	n, err := s.Client.Exists(ctx, redisProcessedKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, id string, when time.Time) error {
	// NX keeps the first mark's timestamp, matching the mem store
	return s.Client.SetNX(ctx, redisProcessedKey(id), strconv.FormatInt(when.Unix(), 10), 0).Err()
}
