// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
)

// DefaultRedisKey is the list encode requests are pushed to.
const DefaultRedisKey = "pvrd:encode"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisQueue is a Redis list of JSON encoded requests: producers LPUSH,
// workers BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects and pings the server.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	q := NewRedisQueueWithClient(client, cfg.Key)
	log.L().Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Str("key", q.key).Msg("connected to Redis encode queue")
	return q, nil
}

func NewRedisQueueWithClient(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) PushEncode(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal encode request: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		metrics.IncEncodePush("redis", "error")
		return fmt.Errorf("push encode request: %w", err)
	}
	metrics.IncEncodePush("redis", "ok")
	return nil
}

// Pop blocks until a request is available or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (Request, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Request{}, err
		}
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Request{}, ctx.Err()
			}
			return Request{}, err
		}
		if len(res) != 2 {
			return Request{}, errors.New("redis encode queue: unexpected response")
		}
		var req Request
		if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
			return Request{}, fmt.Errorf("decode encode request: %w", err)
		}
		return req, nil
	}
}

// Len returns the number of queued requests.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
