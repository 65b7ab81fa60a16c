package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/types"
)

const keyPrefix = "inference:"

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis keeps results in Redis with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(cfg RedisConfig, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the cached result for key.
func (r *Redis) Get(ctx context.Context, key string) (*types.InferenceResult, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	res, err := types.ParseResult(data)
	if err != nil {
		r.logger.Error("failed to parse cached result", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return res, nil
}

// Set stores res under key.
func (r *Redis) Set(ctx context.Context, key string, res *types.InferenceResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+key, data, r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
