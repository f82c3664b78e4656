// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

const (
	DefaultRedisStream = "guardian:emergency_log"
	defaultStreamLen   = 10000
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream with approximate trimming.
	MaxLen int64
}

// RedisLog writes entries to a Redis stream, typically as an off-device
// mirror of the primary log.
type RedisLog struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisLog connects and pings the server.
func NewRedisLog(cfg RedisConfig) (*RedisLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisLog(client, cfg), nil
}

func newRedisLog(client *redis.Client, cfg RedisConfig) *RedisLog {
	if cfg.Stream == "" {
		cfg.Stream = DefaultRedisStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultStreamLen
	}
	return &RedisLog{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

func (r *RedisLog) Close() error {
	return r.client.Close()
}

func (r *RedisLog) Append(ctx context.Context, entry model.LogEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis log: encode entry: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":       string(entry.Kind),
			"session_id": entry.Session.ID,
			"state":      string(entry.Session.State),
			"entry":      string(buf),
		},
	}).Err()
}

// List returns the newest limit entries in append order. limit <= 0 returns
// up to the stream cap.
func (r *RedisLog) List(ctx context.Context, limit int) ([]model.LogEntry, error) {
	count := int64(limit)
	if count <= 0 {
		count = r.maxLen
	}
	msgs, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.LogEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("redis log: message %s has no entry field", msgs[i].ID)
		}
		var entry model.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("redis log: decode %s: %w", msgs[i].ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
